package retrieval

import (
	"math"
	"sort"

	"github.com/hildam/rag-flow-go/repo/vectordb"
)

// WeightedRanker 稠密与稀疏结果加权融合
//
// 两路分数先归一化到 [0,1]：内积用 0.5+atan(s)/π，全文检索分数用 2·atan(s)/π，
// 再按权重求和。同一文档只在一路出现时另一路记 0。
type WeightedRanker struct {
	SparseWeight float64
	DenseWeight  float64
}

// NormalizeIP 内积分数归一化
func NormalizeIP(s float64) float64 {
	return 0.5 + math.Atan(s)/math.Pi
}

// NormalizeSparse 全文检索分数归一化
func NormalizeSparse(s float64) float64 {
	return 2 * math.Atan(s) / math.Pi
}

// Merge 融合两路结果，按分数降序取前 limit 条，同分按 ID 升序
func (r WeightedRanker) Merge(dense, sparse []vectordb.Hit, limit int) []vectordb.Hit {
	merged := make(map[int64]*vectordb.Hit, len(dense)+len(sparse))
	order := make([]int64, 0, len(dense)+len(sparse))

	add := func(h vectordb.Hit, score float64) {
		if cur, ok := merged[h.ID]; ok {
			cur.Score += score
			return
		}
		h.Score = score
		merged[h.ID] = &h
		order = append(order, h.ID)
	}
	for _, h := range dense {
		add(h, r.DenseWeight*NormalizeIP(h.Score))
	}
	for _, h := range sparse {
		add(h, r.SparseWeight*NormalizeSparse(h.Score))
	}

	out := make([]vectordb.Hit, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	sortHits(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortHits 分数降序，同分 ID 升序
func sortHits(hits []vectordb.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
