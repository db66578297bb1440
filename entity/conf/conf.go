package conf

import (
	"fmt"
	"log"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath 默认配置文件路径
const DefaultPath = "config.yaml"

var (
	// 全局 koanf 实例，使用 "." 作为键路径分隔符
	k = koanf.New(".")
	// 配置读写锁，确保并发安全
	configMu sync.RWMutex
	// 文件提供者
	f *file.File
	// 缓存的配置实例
	appConf *AppConfig
)

// Init 初始化配置与日志
func Init(path string) error {
	if path == "" {
		path = DefaultPath
	}
	// 加载配置
	if err := loadConfig(path); err != nil {
		return fmt.Errorf("Init config failed, load config err: %v", err)
	}

	// 启动配置文件监听
	startConfigWatch()

	// 初始化日志
	cfg := GetCfg()
	if err := slog.InitFile(cfg.Log.File, slog.WithLevel(cfg.Log.Level), slog.WithColor(cfg.Log.Color)); err != nil {
		return fmt.Errorf("Init log failed, err: %+v", err)
	}

	slog.Info("Init config: server = %+v, store = %s, embedding mode = %s", cfg.Server, cfg.Store.Backend, cfg.Embedding.Mode)
	return nil
}

// Load 读取配置文件并补全默认值，不修改全局配置
func Load(path string) (*AppConfig, error) {
	kf := koanf.New(".")
	if err := kf.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return unmarshal(kf)
}

// unmarshal 解析配置到结构体，使用 yaml 标签
func unmarshal(kf *koanf.Koanf) (*AppConfig, error) {
	var config AppConfig
	if err := kf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// loadConfig 加载配置
func loadConfig(path string) error {
	configMu.Lock()
	defer configMu.Unlock()

	// 创建文件提供者
	f = file.Provider(path)

	if err := k.Load(f, yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}

	config, err := unmarshal(k)
	if err != nil {
		return err
	}

	// 更新全局配置实例
	appConf = config
	return nil
}

// GetCfg 获取配置，未初始化时返回默认配置
func GetCfg() *AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	if appConf == nil {
		return Defaults()
	}
	return appConf
}

// startConfigWatch 启动配置文件监听
func startConfigWatch() {
	if f == nil {
		log.Printf("file provider not initialized")
		return
	}

	// 监听文件变化并在变化时重新加载配置，只影响之后新建的组件
	err := f.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Printf("Config file watch error: %v", err)
			return
		}

		log.Printf("Config file changed. Reloading...")

		configMu.Lock()
		defer configMu.Unlock()

		kf := koanf.New(".")
		if err := kf.Load(f, yaml.Parser()); err != nil {
			log.Printf("Failed to load reloaded config: %v", err)
			return
		}
		config, err := unmarshal(kf)
		if err != nil {
			log.Printf("Failed to unmarshal reloaded config: %v", err)
			return
		}

		k = kf
		appConf = config
		log.Printf("Config reloaded")
	})
	if err != nil {
		log.Printf("Config file watch start failed: %v", err)
	}
}
