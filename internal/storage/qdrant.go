package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/tracing"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("resume-analyzer/storage/qdrant")

// QdrantPointIDNamespace 生成确定性点ID的命名空间
// 同一会话的同一分块总是得到相同的点ID。
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// QdrantStatusError Qdrant 返回的非 2xx 响应
type QdrantStatusError struct {
	StatusCode int
	Body       string
}

func (e *QdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant API error: status=%d, body=%s", e.StatusCode, e.Body)
}

// Qdrant 以每个会话一个集合的方式提供向量存储
type Qdrant struct {
	endpoint       string
	apiKey         string
	distanceMetric string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// 确保Qdrant实现了VectorBackend接口
var _ VectorBackend = (*Qdrant)(nil)

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:6333" // 默认端点
	}

	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	q := &Qdrant{
		endpoint:       endpoint,
		apiKey:         cfg.APIKey,
		distanceMetric: "Cosine", // 使用余弦相似度
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger.Named("qdrant"),
	}

	// 应用选项
	for _, opt := range opts {
		opt(q)
	}

	return q, nil
}

// Ping 检查Qdrant服务是否可用
func (q *Qdrant) Ping(ctx context.Context) error {
	return q.doRequest(ctx, http.MethodGet, "/collections", nil, nil)
}

// Create 创建会话集合
func (q *Qdrant) Create(ctx context.Context, namespace string, dimension int) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", namespace),
		attribute.Int("db.vector_size", dimension),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	if dimension <= 0 {
		err := fmt.Errorf("向量维度必须为正数: %d", dimension)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	createReqBody := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": q.distanceMetric,
		},
	}
	if err := q.doRequest(ctx, http.MethodPut, "/collections/"+namespace, createReqBody, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("创建集合 '%s' 失败: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "")
	q.logger.Debug().Str("collection", namespace).Int("dimension", dimension).Msg("已创建Qdrant会话集合")
	return nil
}

// Upsert 写入分块向量
func (q *Qdrant) Upsert(ctx context.Context, namespace string, docs []*schema.Document, vectors [][]float64) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Upsert",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_points"),
		attribute.String("db.collection", namespace),
		attribute.Int("vectors.count", len(vectors)),
	)

	if err := checkUpsertInput(docs, vectors); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}
	if len(docs) == 0 {
		span.SetStatus(codes.Ok, "no vectors to store")
		return nil
	}

	points := make([]map[string]any, 0, len(docs))
	for i, doc := range docs {
		idSource := fmt.Sprintf("collection:%s_doc:%s", namespace, doc.ID)
		points = append(points, map[string]any{
			"id":     uuid.NewV5(QdrantPointIDNamespace, idSource).String(),
			"vector": vectors[i],
			"payload": map[string]any{
				"doc_id":       doc.ID,
				"content":      doc.Content,
				MetaChunkIndex: metaInt(doc.MetaData, MetaChunkIndex),
				MetaChunkStart: metaInt(doc.MetaData, MetaChunkStart),
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", namespace)
	if err := q.doRequest(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("写入向量失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Search 在会话集合中检索最相近的分块
func (q *Qdrant) Search(ctx context.Context, namespace string, vector []float64, topK int) ([]*schema.Document, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Search",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", namespace),
		attribute.Int("search.limit", topK),
	)

	if topK <= 0 {
		topK = 3
	}
	searchReq := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}

	var result struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", namespace), searchReq, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("检索向量失败: %w", err)
	}

	docs := make([]*schema.Document, 0, len(result.Result))
	for _, hit := range result.Result {
		content, _ := hit.Payload["content"].(string)
		docID, _ := hit.Payload["doc_id"].(string)
		doc := &schema.Document{
			ID:      docID,
			Content: content,
			MetaData: map[string]any{
				MetaChunkIndex: metaInt(hit.Payload, MetaChunkIndex),
				MetaChunkStart: metaInt(hit.Payload, MetaChunkStart),
			},
		}
		docs = append(docs, doc.WithScore(hit.Score))
	}

	span.SetAttributes(attribute.Int("search.results.count", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

// Drop 删除会话集合，集合不存在视为成功
func (q *Qdrant) Drop(ctx context.Context, namespace string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeleteCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_collection"),
		attribute.String("db.collection", namespace),
	)

	err := q.doRequest(ctx, http.MethodDelete, "/collections/"+namespace, nil, nil)
	if err != nil {
		var statusErr *QdrantStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			span.SetStatus(codes.Ok, "collection already removed")
			return nil
		}
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("删除集合 '%s' 失败: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// List 列出以 prefix 开头的集合
func (q *Qdrant) List(ctx context.Context, prefix string) ([]string, error) {
	var result struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := q.doRequest(ctx, http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, fmt.Errorf("列出集合失败: %w", err)
	}

	names := make([]string, 0, len(result.Result.Collections))
	for _, c := range result.Result.Collections {
		if strings.HasPrefix(c.Name, prefix) {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body any, result any) error {
	// 创建请求和span
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		reader = bytes.NewReader(jsonBody)
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	// 注入trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &QdrantStatusError{
			StatusCode: resp.StatusCode,
			Body:       tracing.TruncateString(string(respBody), tracing.DefaultMaxLength),
		}
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
