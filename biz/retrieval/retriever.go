package retrieval

import (
	"context"
	"strconv"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// KnowledgeRetriever 以 eino Retriever 形式暴露知识库检索
type KnowledgeRetriever struct {
	engine     *Engine
	collection string
	topK       int
	threshold  float64
}

// NewKnowledgeRetriever 创建 eino 检索器
func NewKnowledgeRetriever(engine *Engine, collection string, topK int, threshold float64) *KnowledgeRetriever {
	return &KnowledgeRetriever{engine: engine, collection: collection, topK: topK, threshold: threshold}
}

// Retrieve 实现 retriever.Retriever，支持 WithTopK 与 WithScoreThreshold
func (r *KnowledgeRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK, threshold := r.topK, r.threshold
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, ScoreThreshold: &threshold}, opts...)
	if o.TopK != nil {
		topK = *o.TopK
	}
	if o.ScoreThreshold != nil {
		threshold = *o.ScoreThreshold
	}

	res, err := r.engine.Retrieve(ctx, Query{
		Collection: r.collection,
		Text:       query,
		TopK:       topK,
		Threshold:  threshold,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]*schema.Document, 0, len(res.Documents))
	for _, d := range res.Documents {
		doc := &schema.Document{
			ID:      strconv.FormatInt(d.ID, 10),
			Content: d.Text,
			MetaData: map[string]any{
				"category":    d.Category,
				"source_file": d.SourceFile,
				"title":       d.Title,
				"image_path":  d.ImagePath,
			},
		}
		docs = append(docs, doc.WithScore(d.Score))
	}
	return docs, nil
}

var _ retriever.Retriever = (*KnowledgeRetriever)(nil)
