package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/tracing"
)

var sqliteTracer = otel.Tracer("resume-analyzer/storage/sqlite")

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	doc_id      TEXT PRIMARY KEY,
	chunk_index INTEGER NOT NULL,
	chunk_start INTEGER NOT NULL,
	content     TEXT NOT NULL,
	vector      BLOB NOT NULL
);`

// SQLiteIndex 把会话索引保存在会话目录内的 SQLite 文件中
// 命名空间 {prefix}{sessionID} 对应文件 {root}/{sessionID}/index.db，会话目录删除后索引随之消失。
type SQLiteIndex struct {
	root   string
	prefix string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ VectorBackend = (*SQLiteIndex)(nil)

// NewSQLiteIndex 创建本地索引后端
func NewSQLiteIndex(root, prefix string) *SQLiteIndex {
	if prefix == "" {
		prefix = constants.DefaultCollectionPrefix
	}
	return &SQLiteIndex{root: root, prefix: prefix, dbs: make(map[string]*sql.DB)}
}

func (s *SQLiteIndex) dbPath(namespace string) string {
	return filepath.Join(s.root, strings.TrimPrefix(namespace, s.prefix), constants.LocalIndexFile)
}

func (s *SQLiteIndex) open(namespace string, create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[namespace]; ok {
		return db, nil
	}

	path := s.dbPath(namespace)
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建索引目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开本地索引失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.dbs[namespace] = db
	return db, nil
}

// Create 创建索引文件与表结构
func (s *SQLiteIndex) Create(ctx context.Context, namespace string, dimension int) error {
	ctx, span := s.startSpan(ctx, "create", namespace)
	defer span.End()

	db, err := s.open(namespace, true)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("初始化本地索引表失败: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta(key, value) VALUES ('dimension', ?)`, fmt.Sprint(dimension)); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("写入索引元数据失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Upsert 在一个事务中写入全部分块
func (s *SQLiteIndex) Upsert(ctx context.Context, namespace string, docs []*schema.Document, vectors [][]float64) error {
	ctx, span := s.startSpan(ctx, "upsert", namespace)
	defer span.End()

	if err := checkUpsertInput(docs, vectors); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}
	db, err := s.open(namespace, false)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks(doc_id, chunk_index, chunk_start, content, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID,
			metaInt(doc.MetaData, MetaChunkIndex),
			metaInt(doc.MetaData, MetaChunkStart),
			doc.Content, encodeVector(vectors[i])); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return fmt.Errorf("写入分块 %s 失败: %w", doc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("提交事务失败: %w", err)
	}

	span.SetAttributes(attribute.Int("vectors.count", len(docs)))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Search 以余弦相似度对会话内全部分块排序，返回前 topK 个
// 单份简历只有几十个分块，全量扫描足够。
func (s *SQLiteIndex) Search(ctx context.Context, namespace string, vector []float64, topK int) ([]*schema.Document, error) {
	ctx, span := s.startSpan(ctx, "search", namespace)
	defer span.End()

	db, err := s.open(namespace, false)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT doc_id, chunk_index, chunk_start, content, vector FROM chunks`)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("查询本地索引失败: %w", err)
	}
	defer rows.Close()

	var docs []*schema.Document
	for rows.Next() {
		var (
			id           string
			index, start int
			content      string
			blob         []byte
		)
		if err := rows.Scan(&id, &index, &start, &content, &blob); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return nil, fmt.Errorf("读取分块失败: %w", err)
		}
		doc := &schema.Document{
			ID:       id,
			Content:  content,
			MetaData: map[string]any{MetaChunkIndex: index, MetaChunkStart: start},
		}
		docs = append(docs, doc.WithScore(cosine(vector, decodeVector(blob))))
	}
	if err := rows.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}

	// 分数相同时按分块顺序，保证结果确定
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score() != docs[j].Score() {
			return docs[i].Score() > docs[j].Score()
		}
		return metaInt(docs[i].MetaData, MetaChunkIndex) < metaInt(docs[j].MetaData, MetaChunkIndex)
	})
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}

	span.SetAttributes(attribute.Int("search.results.count", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

// Drop 关闭连接并删除索引文件，文件不存在视为成功
func (s *SQLiteIndex) Drop(ctx context.Context, namespace string) error {
	_, span := s.startSpan(ctx, "drop", namespace)
	defer span.End()

	s.mu.Lock()
	db, ok := s.dbs[namespace]
	delete(s.dbs, namespace)
	s.mu.Unlock()

	if ok {
		if err := db.Close(); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
		}
	}

	path := s.dbPath(namespace)
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			tracing.RecordError(span, err, tracing.ErrorTypeCleanup)
			return fmt.Errorf("删除本地索引失败: %w", err)
		}
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// List 列出存储根目录下带索引文件的命名空间
func (s *SQLiteIndex) List(_ context.Context, prefix string) ([]string, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取存储根目录失败: %w", err)
	}

	var names []string
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, item.Name(), constants.LocalIndexFile)); err != nil {
			continue
		}
		if ns := s.prefix + item.Name(); strings.HasPrefix(ns, prefix) {
			names = append(names, ns)
		}
	}
	return names, nil
}

// Close 关闭所有打开的索引
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for ns, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.dbs, ns)
	}
	return errors.Join(errs...)
}

func (s *SQLiteIndex) startSpan(ctx context.Context, op, namespace string) (context.Context, trace.Span) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteIndex."+op)
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", op),
		attribute.String("db.collection", namespace),
	)
	return ctx, span
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	v := make([]float64, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
