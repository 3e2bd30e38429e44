package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/rag"
	"resume-analyzer/internal/storage"
	"resume-analyzer/internal/tracing"
)

// 会话ID冲突时的最大重新分配次数
const maxSessionAllocations = 3

// Session 单份文档的一次索引分析
type Session struct {
	ID        string
	Namespace string
	Dir       string
	CreatedAt time.Time

	// Handle 索引建立后由调用方回填
	Handle rag.IndexHandle
}

// IndexDeleter 删除会话索引
type IndexDeleter interface {
	Delete(ctx context.Context, handle rag.IndexHandle) error
}

// SessionManager 分配会话并保证清理
type SessionManager struct {
	store    *storage.SessionStore
	registry storage.SessionRegistry
	index    IndexDeleter
	prefix   string

	newID  func() string
	now    func() time.Time
	logger zerolog.Logger
}

// NewSessionManager 创建会话管理器；prefix 为索引命名空间前缀
func NewSessionManager(store *storage.SessionStore, registry storage.SessionRegistry, index IndexDeleter, prefix string) *SessionManager {
	return &SessionManager{
		store:    store,
		registry: registry,
		index:    index,
		prefix:   prefix,
		newID:    uuid.NewString,
		now:      time.Now,
		logger:   logger.Named("session"),
	}
}

// Open 分配新会话：先在登记表中占用ID，再创建会话目录
func (m *SessionManager) Open(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Session.Open")
	defer span.End()

	var lastErr error
	for i := 0; i < maxSessionAllocations; i++ {
		id := m.newID()
		createdAt := m.now().UTC()

		if err := m.registry.Register(ctx, id, createdAt); err != nil {
			lastErr = err
			if errors.Is(err, storage.ErrSessionExists) {
				m.logger.Warn().Str("session_id", id).Msg("会话ID冲突，重新分配")
				continue
			}
			break
		}

		dir, err := m.store.Create(id)
		if err != nil {
			lastErr = err
			if uerr := m.registry.Unregister(context.WithoutCancel(ctx), id); uerr != nil {
				m.logger.Error().Err(uerr).Str("session_id", id).Msg("回滚会话登记失败")
			}
			if errors.Is(err, storage.ErrSessionExists) {
				continue
			}
			break
		}

		span.SetAttributes(attribute.String("session.id", id))
		m.logger.Info().Str("session_id", id).Str("dir", dir).Msg("分析会话已创建")
		return &Session{
			ID:        id,
			Namespace: m.prefix + id,
			Dir:       dir,
			CreatedAt: createdAt,
			Handle:    rag.IndexHandle{Namespace: m.prefix + id},
		}, nil
	}

	err := NewSessionError("", lastErr)
	tracing.RecordError(span, err, tracing.ErrorTypeInternal)
	return nil, err
}

// Close 删除会话索引、会话目录并注销会话
// 索引与目录的删除总会执行；索引删除失败时会话保持登记，交给过期清理。
// 失败只记录日志，返回值汇总全部清理错误，调用方不应据此改变分析结果。
func (m *SessionManager) Close(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Session.Close")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.ID))

	var errs []error
	indexErr := m.index.Delete(ctx, s.Handle)
	if indexErr != nil {
		errs = append(errs, NewCleanupError(s.ID, "删除会话索引", indexErr))
	}
	if err := m.store.Remove(s.ID); err != nil {
		errs = append(errs, NewCleanupError(s.ID, "删除会话目录", err))
	}
	// 索引未删除时保留登记，过期清理通过登记表找到并删除残留索引
	if indexErr == nil {
		if err := m.registry.Unregister(ctx, s.ID); err != nil {
			errs = append(errs, NewCleanupError(s.ID, "注销会话", err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		tracing.RecordError(span, err, tracing.ErrorTypeCleanup)
		m.logger.Error().Err(err).Str("session_id", s.ID).Msg("会话清理未完全成功，等待过期清理")
		return err
	}

	m.logger.Debug().
		Str("session_id", s.ID).
		Dur("lifetime", m.now().Sub(s.CreatedAt)).
		Msg("分析会话已清理")
	return nil
}
