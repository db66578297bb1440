package conf

import (
	"github.com/hildam/rag-flow-go/entity/consts"
)

// Defaults 默认配置
func Defaults() *AppConfig {
	cfg := &AppConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 补全未配置的字段
func (c *AppConfig) ApplyDefaults() {
	e := &c.Embedding
	if e.Mode == "" {
		e.Mode = "remote"
	}
	if e.RPMLimit <= 0 {
		e.RPMLimit = 120
	}
	if e.WindowSeconds <= 0 {
		e.WindowSeconds = 60
	}
	if e.MaxRetries <= 0 {
		e.MaxRetries = 5
	}
	if e.BaseBackoff <= 0 {
		e.BaseBackoff = 2.0
	}
	if e.TimeoutSecond <= 0 {
		e.TimeoutSecond = 30
	}
	if e.RemoteModel == "" {
		e.RemoteModel = "multimodal-embedding-v1"
	}

	r := &c.Retrieval
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.ContextTopK <= 0 {
		r.ContextTopK = 3
	}
	if r.KBThreshold <= 0 {
		r.KBThreshold = consts.KnowledgeThreshold
	}
	if r.ContextThreshold <= 0 {
		r.ContextThreshold = consts.ContextThreshold
	}
	if r.RelevanceBar <= 0 {
		r.RelevanceBar = consts.RelevanceBar
	}
	if r.SparseWeight <= 0 {
		r.SparseWeight = 1.0
	}
	if r.DenseWeight <= 0 {
		r.DenseWeight = 1.0
	}
	// 负数表示不重试
	if r.SearchRetries == 0 {
		r.SearchRetries = 2
	}

	w := &c.Workflow
	if w.AutoAcceptThreshold <= 0 {
		w.AutoAcceptThreshold = consts.AutoAcceptThreshold
	}
	if w.MaxWebSearchRounds <= 0 {
		w.MaxWebSearchRounds = 3
	}
	if w.MaxSteps <= 0 {
		w.MaxSteps = 20
	}
	if w.MaxLimitToken <= 0 {
		w.MaxLimitToken = 32000
	}

	s := &c.Store
	if s.Backend == "" {
		s.Backend = "memory"
	}
	if s.KeyPrefix == "" {
		s.KeyPrefix = "ragflow:session:"
	}

	v := &c.VectorDB
	if v.KBTable == "" {
		v.KBTable = "kb_documents"
	}
	if v.ContextTable == "" {
		v.ContextTable = "context_memory"
	}
	if v.TextSearchConfig == "" {
		v.TextSearchConfig = "simple"
	}

	m := &c.Memory
	if m.Workers <= 0 {
		m.Workers = 5
	}
	if m.Queue <= 0 {
		m.Queue = 256
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8888"
	}
	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = ":9090"
	}
	if c.Log.File == "" {
		c.Log.File = "logs/app.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Model.JudgeModel.ModelID == "" {
		c.Model.JudgeModel = c.Model.DefaultModel
	}
}
