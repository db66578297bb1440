package retriever

import (
	"context"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/rag-flow-go/biz/retrieval"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/vectordb"
)

// KnowledgeSearcher 知识库检索
type KnowledgeSearcher interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// retrieverImpl 知识库检索节点
type retrieverImpl struct {
	engine    KnowledgeSearcher
	topK      int
	threshold float64
}

// NewRetriever 创建实例
func NewRetriever(engine KnowledgeSearcher, topK int, threshold float64) *retrieverImpl {
	if threshold <= 0 {
		threshold = consts.KnowledgeThreshold
	}
	return &retrieverImpl{engine: engine, topK: topK, threshold: threshold}
}

// Key 节点名
func (r *retrieverImpl) Key() consts.Node {
	return consts.Retriever
}

// Run 检索失败时按无结果处理，后续应答会说明知识库没有相关内容
func (r *retrieverImpl) Run(ctx context.Context, state *model.State) (*model.Patch, error) {
	patch := &model.Patch{SetContext: true}
	res, err := r.engine.Retrieve(ctx, retrieval.Query{
		Collection: vectordb.CollectionKnowledge,
		Text:       state.InputText,
		Image:      state.InputImage,
		TopK:       r.topK,
		Threshold:  r.threshold,
	})
	if err != nil {
		slog.Error("retriever failed, session = %s, err = %+v", state.SessionID, err)
		return patch, nil
	}
	patch.ContextRetrieved = res.Documents
	patch.ImagesRetrieved = res.Images
	slog.Info("retriever info, session = %s, docs = %d, images = %d", state.SessionID, len(res.Documents), len(res.Images))
	return patch, nil
}
