package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/storage"
	"resume-analyzer/internal/tracing"
)

// DefaultStaleSessionAge 会话超过该时长即视为过期
const DefaultStaleSessionAge = 24 * time.Hour

// SweepReport 一次清理的统计
type SweepReport struct {
	Scanned int
	Removed int
	Errors  int
	// Adopted 新登记的无主索引数，超过过期时间后在之后的清理中删除
	Adopted int
}

// Sweeper 清理过期会话，兜底未能正常清理的会话
// 扫描存储根目录中的会话目录，并通过会话登记表找到远端索引中的过期集合。
// 既没有目录也没有登记的索引无法得知创建时间，先以发现时间登记，过期后再删除。
type Sweeper struct {
	store    *storage.SessionStore
	registry storage.SessionRegistry
	vectors  storage.VectorBackend
	prefix   string
	maxAge   time.Duration

	now     func() time.Time
	running atomic.Bool
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

// NewSweeper 创建清理器；maxAge 非正数时使用 24 小时
func NewSweeper(store *storage.SessionStore, registry storage.SessionRegistry, vectors storage.VectorBackend, prefix string, maxAge time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultStaleSessionAge
	}
	return &Sweeper{
		store:    store,
		registry: registry,
		vectors:  vectors,
		prefix:   prefix,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger.Named("sweeper"),
	}
}

// Sweep 执行一次清理，从不返回错误；已被删除的条目不计为错误
func (s *Sweeper) Sweep(ctx context.Context) SweepReport {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	var report SweepReport
	cutoff := s.now().Add(-s.maxAge)
	handled := make(map[string]bool)

	entries, err := s.store.Entries()
	if err != nil {
		report.Errors++
		s.logger.Error().Err(err).Str("root", s.store.Root()).Msg("扫描会话存储根目录失败")
	}
	for _, entry := range entries {
		report.Scanned++
		if !entry.CreatedAt.Before(cutoff) {
			continue
		}
		handled[entry.ID] = true

		ok := true
		if entry.IsDir {
			ok = s.dropIndex(ctx, entry.ID)
		}
		if err := s.store.RemoveEntry(entry); err != nil {
			ok = false
			s.logger.Error().Err(NewCleanupError(entry.ID, entry.Path, err)).Msg("删除过期会话目录失败")
		}
		if entry.IsDir && ok {
			ok = s.unregister(ctx, entry.ID)
		}
		if ok {
			report.Removed++
		} else {
			report.Errors++
		}
	}

	if s.registry != nil {
		ids, err := s.registry.Older(ctx, cutoff)
		if err != nil {
			report.Errors++
			s.logger.Error().Err(err).Msg("查询过期会话登记失败")
		}
		for _, id := range ids {
			if handled[id] {
				continue
			}
			handled[id] = true
			report.Scanned++
			// 索引删除失败时保留登记，下次清理重试
			dropped := s.dropIndex(ctx, id)
			ok := dropped
			if err := s.store.Remove(id); err != nil {
				ok = false
				s.logger.Error().Err(NewCleanupError(id, "删除会话目录", err)).Msg("删除过期会话目录失败")
			}
			if dropped {
				ok = s.unregister(ctx, id) && ok
			}
			if ok {
				report.Removed++
			} else {
				report.Errors++
			}
		}
	}

	if s.registry != nil && s.vectors != nil {
		s.adoptOrphans(ctx, handled, &report)
	}

	span.SetAttributes(
		attribute.Int("sweep.adopted", report.Adopted),
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.removed", report.Removed),
		attribute.Int("sweep.errors", report.Errors),
	)
	if report.Errors > 0 {
		span.SetAttributes(attribute.String("error.type", string(tracing.ErrorTypeCleanup)))
	}

	event := s.logger.Debug()
	if report.Removed > 0 || report.Errors > 0 || report.Adopted > 0 {
		event = s.logger.Info()
	}
	event.
		Int("scanned", report.Scanned).
		Int("removed", report.Removed).
		Int("errors", report.Errors).
		Int("adopted", report.Adopted).
		Dur("max_age", s.maxAge).
		Msg("过期会话清理完成")
	return report
}

// adoptOrphans 登记向量后端中无主的会话索引
// 存活会话总是先登记再建索引，所以登记冲突说明会话仍在使用，直接跳过。
func (s *Sweeper) adoptOrphans(ctx context.Context, handled map[string]bool, report *SweepReport) {
	namespaces, err := s.vectors.List(ctx, s.prefix)
	if err != nil {
		report.Errors++
		s.logger.Error().Err(err).Str("prefix", s.prefix).Msg("列出会话索引失败")
		return
	}

	for _, ns := range namespaces {
		id := strings.TrimPrefix(ns, s.prefix)
		if id == "" || handled[id] || s.store.Exists(id) {
			continue
		}
		err := s.registry.Register(ctx, id, s.now())
		switch {
		case err == nil:
			report.Adopted++
			s.logger.Warn().Str("namespace", ns).Msg("发现无主会话索引，已登记等待过期清理")
		case errors.Is(err, storage.ErrSessionExists):
		default:
			report.Errors++
			s.logger.Error().Err(NewCleanupError(id, "登记无主索引", err)).Msg("登记无主会话索引失败")
		}
	}
}

func (s *Sweeper) dropIndex(ctx context.Context, id string) bool {
	if s.vectors == nil {
		return true
	}
	if err := s.vectors.Drop(ctx, s.prefix+id); err != nil {
		s.logger.Error().Err(NewCleanupError(id, "删除会话索引", err)).Msg("删除过期会话索引失败")
		return false
	}
	return true
}

func (s *Sweeper) unregister(ctx context.Context, id string) bool {
	if s.registry == nil {
		return true
	}
	if err := s.registry.Unregister(ctx, id); err != nil {
		s.logger.Error().Err(NewCleanupError(id, "注销会话", err)).Msg("注销过期会话失败")
		return false
	}
	return true
}

// TriggerAsync 在后台执行一次清理；已有清理在进行时直接返回 false
func (s *Sweeper) TriggerAsync() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.Sweep(context.Background())
	}()
	return true
}

// Start 启动周期清理任务，立即执行一次，ctx 结束时退出
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	s.logger.Info().
		Dur("interval", interval).
		Dur("max_age", s.maxAge).
		Msg("启动过期会话清理任务")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runExclusive(ctx)
	for {
		select {
		case <-ticker.C:
			s.runExclusive(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("过期会话清理任务退出")
			return
		}
	}
}

// Wait 等待后台清理结束
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) runExclusive(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)
	s.Sweep(ctx)
}
