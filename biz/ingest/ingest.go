package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/repo/embedding"
	"github.com/hildam/rag-flow-go/repo/vectordb"
	"golang.org/x/sync/errgroup"
)

// 元数据字段
const (
	MetaEmbeddingType = "embedding_type"
	MetaSource        = "source"
	headerPrefix      = "Header "
	titleSep          = "--->"
	progressEvery     = 20
)

// RecordEmbedder 入库条目向量化
type RecordEmbedder interface {
	ProcessItemWithGuard(ctx context.Context, rec embedding.Record) embedding.Record
}

// DocumentInserter 知识库写入
type DocumentInserter interface {
	InsertDocuments(ctx context.Context, docs []vectordb.Document) (int, error)
}

// Stats 入库统计
type Stats struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Empty    int `json:"empty"` // 重试耗尽后无向量
	Inserted int `json:"inserted"`
}

// Ingester 切分后的文档向量化并写入知识库
type Ingester struct {
	embedder    RecordEmbedder
	store       DocumentInserter
	concurrency int
	batchSize   int
}

// NewIngester 创建入库器
func NewIngester(embedder RecordEmbedder, store DocumentInserter, concurrency, batchSize int) *Ingester {
	if concurrency <= 0 {
		concurrency = 4
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Ingester{embedder: embedder, store: store, concurrency: concurrency, batchSize: batchSize}
}

// ReadJSONL 每行一个 eino Document
func ReadJSONL(r io.Reader) ([]*schema.Document, error) {
	var docs []*schema.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		doc := &schema.Document{}
		if err := json.Unmarshal([]byte(raw), doc); err != nil {
			return nil, fmt.Errorf("ReadJSONL failed, line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ReadJSONL failed, err: %w", err)
	}
	return docs, nil
}

// ToDocument 切分文档转为知识库记录：图片文档内容为图片路径，文本内容带上标题
func ToDocument(doc *schema.Document) vectordb.Document {
	meta := doc.MetaData
	category, _ := meta[MetaEmbeddingType].(string)
	if category != consts.CategoryImage {
		category = consts.CategoryText
	}
	source, _ := meta[MetaSource].(string)

	out := vectordb.Document{
		Category: category,
		Filename: source,
		FileType: strings.ToLower(filepath.Ext(source)),
		Title:    title(meta),
	}
	if category == consts.CategoryImage {
		out.ImagePath = doc.Content
		return out
	}
	out.Text = fmt.Sprintf("标题为：%s。内容为%s", out.Title, doc.Content)
	return out
}

// title 按层级拼接 Header N
func title(meta map[string]any) string {
	type header struct {
		level int
		value string
	}
	var hs []header
	for k, v := range meta {
		if !strings.HasPrefix(k, headerPrefix) {
			continue
		}
		level, err := strconv.Atoi(strings.TrimPrefix(k, headerPrefix))
		if err != nil {
			continue
		}
		s, _ := v.(string)
		if s = strings.TrimSpace(s); s != "" {
			hs = append(hs, header{level: level, value: s})
		}
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].level < hs[j].level })

	parts := make([]string, 0, len(hs))
	for _, h := range hs {
		parts = append(parts, h.value)
	}
	return strings.Join(parts, titleSep)
}

// Run 并发向量化后分批写入，向量化失败的条目以空向量写入
func (in *Ingester) Run(ctx context.Context, docs []*schema.Document) (Stats, error) {
	stats := Stats{Total: len(docs)}
	out := make([]vectordb.Document, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d := ToDocument(doc)
			rec := in.embedder.ProcessItemWithGuard(gctx, embedding.Record{Text: d.Text, ImagePath: d.ImagePath})
			d.Dense = rec.Dense
			out[i] = d
			if (i+1)%progressEvery == 0 {
				slog.Info("Ingest info, embedded %d/%d", i+1, len(docs))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("Ingest failed, embed err: %w", err)
	}

	for _, d := range out {
		if len(d.Dense) > 0 {
			stats.Embedded++
		} else {
			stats.Empty++
		}
	}

	for start := 0; start < len(out); start += in.batchSize {
		end := min(start+in.batchSize, len(out))
		n, err := in.store.InsertDocuments(ctx, out[start:end])
		stats.Inserted += n
		if err != nil {
			slog.Error("Ingest failed, batch [%d, %d), err = %+v", start, end, err)
			return stats, err
		}
	}
	slog.Info("Ingest success, stats = %+v", stats)
	return stats, nil
}
