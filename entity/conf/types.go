package conf

// MCPServerConfig MCP服务器配置
type MCPServerConfig struct {
	Type    string            `yaml:"type" mapstructure:"type"`                           // 传输类型 stdio / sse，缺省按是否配置 url 判断
	Command string            `yaml:"command" mapstructure:"command"`                     // MCP服务器启动命令
	Args    []string          `yaml:"args" mapstructure:"args"`                           // 命令行参数列表
	Env     map[string]string `yaml:"env,omitempty" mapstructure:"env,omitempty"`         // 环境变量映射，可选配置
	URL     string            `yaml:"url" mapstructure:"url"`                             // SSE 服务地址
	Headers map[string]string `yaml:"headers,omitempty" mapstructure:"headers,omitempty"` // SSE 请求头
	Tools   []string          `yaml:"tools,omitempty" mapstructure:"tools,omitempty"`     // 只加载这些工具，为空加载全部
}

// MCPConfig MCP配置
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers" mapstructure:"servers"` // MCP服务器配置映射，key为服务器名称
}

// Model 单个模型配置
type Model struct {
	ModelID     string   `yaml:"model_id" mapstructure:"model_id"`       // 模型ID
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`       // 模型服务的基础URL地址
	APIKey      string   `yaml:"api_key" mapstructure:"api_key"`         // 模型服务的API密钥
	Temperature *float32 `yaml:"temperature" mapstructure:"temperature"` // 采样温度
	TopP        *float32 `yaml:"top_p" mapstructure:"top_p"`             // 核采样
	MaxTokens   *int     `yaml:"max_tokens" mapstructure:"max_tokens"`   // 最大输出token
}

// ModelConfig 模型配置
type ModelConfig struct {
	DefaultModel Model `yaml:"default_model" mapstructure:"default_model"` // 应答使用的模型
	JudgeModel   Model `yaml:"judge_model" mapstructure:"judge_model"`     // 评估使用的模型，为空时复用默认模型
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Mode          string  `yaml:"mode" mapstructure:"mode"`                       // 查询向量化方式 remote / local
	RemoteURL     string  `yaml:"remote_url" mapstructure:"remote_url"`           // 远程多模态向量服务地址
	RemoteAPIKey  string  `yaml:"remote_api_key" mapstructure:"remote_api_key"`   // 远程服务密钥
	RemoteModel   string  `yaml:"remote_model" mapstructure:"remote_model"`       // 远程模型
	LocalURL      string  `yaml:"local_url" mapstructure:"local_url"`             // 本地向量服务地址
	LocalModel    string  `yaml:"local_model" mapstructure:"local_model"`         // 本地模型
	RPMLimit      int     `yaml:"rpm_limit" mapstructure:"rpm_limit"`             // 窗口内最大请求数
	WindowSeconds int     `yaml:"window_seconds" mapstructure:"window_seconds"`   // 窗口长度
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`         // 429 最大重试次数
	BaseBackoff   float64 `yaml:"base_backoff" mapstructure:"base_backoff"`       // 退避基数，秒
	Dimension     int     `yaml:"dimension" mapstructure:"dimension"`             // 向量维度，0 不校验
	TimeoutSecond int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"` // 单次请求超时
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK             int     `yaml:"top_k" mapstructure:"top_k"`                         // 知识库召回数
	ContextTopK      int     `yaml:"context_top_k" mapstructure:"context_top_k"`         // 历史上下文召回数
	KBThreshold      float64 `yaml:"kb_threshold" mapstructure:"kb_threshold"`           // 知识库分数阈值
	ContextThreshold float64 `yaml:"context_threshold" mapstructure:"context_threshold"` // 历史上下文分数阈值
	RelevanceBar     float64 `yaml:"relevance_bar" mapstructure:"relevance_bar"`         // 历史上下文相关性预过滤阈值
	SparseWeight     float64 `yaml:"sparse_weight" mapstructure:"sparse_weight"`         // 稀疏检索权重
	DenseWeight      float64 `yaml:"dense_weight" mapstructure:"dense_weight"`           // 稠密检索权重
	SearchRetries    int     `yaml:"search_retries" mapstructure:"search_retries"`       // 检索失败重试次数
}

// WorkflowConfig 工作流配置
type WorkflowConfig struct {
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold" mapstructure:"auto_accept_threshold"` // 评估自动通过阈值
	MaxWebSearchRounds  int     `yaml:"max_web_search_rounds" mapstructure:"max_web_search_rounds"` // 兜底联网搜索最大轮数
	MaxSteps            int     `yaml:"max_steps" mapstructure:"max_steps"`                         // 单轮最大节点执行数
	MaxLimitToken       int     `yaml:"max_limit_token" mapstructure:"max_limit_token"`             // 单条消息最大长度
}

// StoreConfig 状态存储配置
type StoreConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`       // memory / redis
	RedisAddr  string `yaml:"redis_addr" mapstructure:"redis_addr"` // redis 地址
	RedisPass  string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB    int    `yaml:"redis_db" mapstructure:"redis_db"`
	KeyPrefix  string `yaml:"key_prefix" mapstructure:"key_prefix"`   // 键前缀
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds"` // 过期时间，0 不过期
}

// VectorDBConfig 向量库配置
type VectorDBConfig struct {
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`             // postgres 连接串
	KBTable          string `yaml:"kb_table" mapstructure:"kb_table"`                     // 知识库表
	ContextTable     string `yaml:"context_table" mapstructure:"context_table"`           // 历史上下文表
	MaxConns         int32  `yaml:"max_conns" mapstructure:"max_conns"`                   // 连接池大小
	TextSearchConfig string `yaml:"text_search_config" mapstructure:"text_search_config"` // 全文检索配置
}

// MemoryConfig 长期记忆写入配置
type MemoryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Workers int  `yaml:"workers" mapstructure:"workers"` // 写入协程数
	Queue   int  `yaml:"queue" mapstructure:"queue"`     // 队列长度
}

// ServerConfig 服务监听配置
type ServerConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`             // API 监听地址
	AdminAddr string `yaml:"admin_addr" mapstructure:"admin_addr"` // 指标与健康检查监听地址
}

// LogConfig 日志配置
type LogConfig struct {
	File  string `yaml:"file" mapstructure:"file"`
	Level string `yaml:"level" mapstructure:"level"`
	Color bool   `yaml:"color" mapstructure:"color"`
}

// AppConfig 应用配置
type AppConfig struct {
	MCP       MCPConfig       `yaml:"mcp" mapstructure:"mcp"`             // MCP服务相关配置
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`         // 大语言模型相关配置
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"` // 向量化配置
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"` // 检索配置
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`   // 工作流配置
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`         // 状态存储配置
	VectorDB  VectorDBConfig  `yaml:"vectordb" mapstructure:"vectordb"`   // 向量库配置
	Memory    MemoryConfig    `yaml:"memory" mapstructure:"memory"`       // 长期记忆配置
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`       // 服务配置
	Log       LogConfig       `yaml:"log" mapstructure:"log"`             // 日志配置
}
