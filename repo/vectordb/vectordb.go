package vectordb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// 集合名
const (
	CollectionKnowledge = "knowledge" // 知识库
	CollectionContext   = "context"   // 历史上下文
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config 向量库配置
type Config struct {
	DatabaseURL      string
	KBTable          string
	ContextTable     string
	MaxConns         int32
	TextSearchConfig string
}

// Hit 检索命中
type Hit struct {
	ID        int64
	Text      string
	Category  string
	Filename  string
	ImagePath string
	Title     string
	Score     float64
}

// SearchRequest 检索请求
type SearchRequest struct {
	Collection string
	Vector     []float64 // 稠密检索使用
	Query      string    // 稀疏检索使用
	User       string    // 非空时按用户过滤，仅历史上下文
	Limit      int
}

// ContextRecord 历史上下文记录
type ContextRecord struct {
	Text        string
	User        string
	Timestamp   time.Time
	MessageType string
	Dense       []float64
}

// Document 知识库文档
type Document struct {
	Text      string
	Category  string
	Filename  string
	FileType  string
	ImagePath string
	Title     string
	Dense     []float64
}

// collection 集合到表字段的映射
type collection struct {
	table  string
	dense  string
	sparse string
	cols   string // 输出列，顺序与 Hit 一致
	user   bool
}

// Store pgvector 向量库
type Store struct {
	pool  *pgxpool.Pool
	cols  map[string]collection
	tsCfg string
}

// New 连接向量库
func New(ctx context.Context, cfg Config) (*Store, error) {
	for _, ident := range []string{cfg.KBTable, cfg.ContextTable, cfg.TextSearchConfig} {
		if !identRe.MatchString(ident) {
			return nil, fmt.Errorf("vectordb.New failed, invalid identifier %q", ident)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("vectordb.New failed, parse database url err: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	s := &Store{
		pool:  pool,
		tsCfg: cfg.TextSearchConfig,
		cols: map[string]collection{
			CollectionKnowledge: {
				table:  cfg.KBTable,
				dense:  "dense",
				sparse: "sparse",
				cols:   "id, text, coalesce(category, ''), coalesce(filename, ''), coalesce(image_path, ''), coalesce(title, '')",
			},
			CollectionContext: {
				table:  cfg.ContextTable,
				dense:  "context_dense",
				sparse: "context_sparse",
				cols:   "id, context_text, 'text', '', '', ''",
				user:   true,
			},
		},
	}
	slog.Info("vectordb.New success, kb table = %s, context table = %s", cfg.KBTable, cfg.ContextTable)
	return s, nil
}

// Close 关闭连接池
func (s *Store) Close() {
	s.pool.Close()
}

// Ping 连通性检查
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// DenseSearch 内积检索，分数为内积
func (s *Store) DenseSearch(ctx context.Context, req SearchRequest) ([]Hit, error) {
	c, err := s.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) == 0 {
		return nil, nil
	}

	args := []any{pgvector.NewVector(toFloat32(req.Vector)), req.Limit}
	where := fmt.Sprintf("WHERE %s IS NOT NULL", c.dense)
	if c.user && req.User != "" {
		where += ` AND "user" = $3`
		args = append(args, req.User)
	}
	sql := fmt.Sprintf(
		"SELECT %s, (-(%s <#> $1))::float8 AS score FROM %s %s ORDER BY %s <#> $1 LIMIT $2",
		c.cols, c.dense, c.table, where, c.dense,
	)
	return s.query(ctx, sql, args...)
}

// SparseSearch 全文检索，分数为 ts_rank_cd
func (s *Store) SparseSearch(ctx context.Context, req SearchRequest) ([]Hit, error) {
	c, err := s.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, nil
	}

	tsq := fmt.Sprintf("plainto_tsquery('%s', $1)", s.tsCfg)
	args := []any{req.Query, req.Limit}
	where := fmt.Sprintf("WHERE %s @@ %s", c.sparse, tsq)
	if c.user && req.User != "" {
		where += ` AND "user" = $3`
		args = append(args, req.User)
	}
	sql := fmt.Sprintf(
		"SELECT %s, ts_rank_cd(%s, %s)::float8 AS score FROM %s %s ORDER BY score DESC LIMIT $2",
		c.cols, c.sparse, tsq, c.table, where,
	)
	return s.query(ctx, sql, args...)
}

// InsertContext 写入一条历史上下文
func (s *Store) InsertContext(ctx context.Context, rec ContextRecord) error {
	c := s.cols[CollectionContext]
	var dense any
	if len(rec.Dense) > 0 {
		dense = pgvector.NewVector(toFloat32(rec.Dense))
	}
	sql := fmt.Sprintf(
		`INSERT INTO %s (context_text, "user", timestamp, message_type, context_dense) VALUES ($1, $2, $3, $4, $5)`,
		c.table,
	)
	_, err := s.pool.Exec(ctx, sql, rec.Text, rec.User, rec.Timestamp.UnixMilli(), rec.MessageType, dense)
	if err != nil {
		return fmt.Errorf("InsertContext failed, err: %w", err)
	}
	return nil
}

// InsertDocuments 批量写入知识库文档，返回写入条数
func (s *Store) InsertDocuments(ctx context.Context, docs []Document) (int, error) {
	c := s.cols[CollectionKnowledge]
	sql := fmt.Sprintf(
		"INSERT INTO %s (text, category, filename, filetype, image_path, title, dense) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		c.table,
	)
	batch := &pgx.Batch{}
	for _, d := range docs {
		var dense any
		if len(d.Dense) > 0 {
			dense = pgvector.NewVector(toFloat32(d.Dense))
		}
		batch.Queue(sql, d.Text, d.Category, d.Filename, d.FileType, d.ImagePath, d.Title, dense)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	n := 0
	for range docs {
		if _, err := br.Exec(); err != nil {
			return n, fmt.Errorf("InsertDocuments failed, inserted %d, err: %w", n, err)
		}
		n++
	}
	return n, nil
}

// query 执行检索并扫描结果
func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Hit, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Text, &h.Category, &h.Filename, &h.ImagePath, &h.Title, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) collection(name string) (collection, error) {
	c, ok := s.cols[name]
	if !ok {
		return collection{}, fmt.Errorf("unknown collection %q", name)
	}
	return c, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
