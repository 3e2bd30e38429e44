package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 会话目录
	Sessions *SessionStore

	// 会话登记表（Redis 或进程内）
	Registry SessionRegistry

	// 会话向量索引（Qdrant 或本地 SQLite）
	Vectors VectorBackend

	// 集合名前缀
	CollectionPrefix string

	// 键值存储，未启用时为 nil
	Redis *Redis

	sqlite *SQLiteIndex
}

// NewStorage 创建存储管理器
// Redis 初始化失败时降级为进程内登记表，向量后端初始化失败则直接返回错误。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := logger.Named("storage")

	sessions, err := NewSessionStore(cfg.Index.StorageRoot)
	if err != nil {
		return nil, err
	}

	prefix := cfg.Index.Qdrant.CollectionPrefix
	if prefix == "" {
		prefix = constants.DefaultCollectionPrefix
	}

	s := &Storage{
		Sessions:         sessions,
		CollectionPrefix: prefix,
	}

	switch strings.ToLower(cfg.Index.Backend) {
	case "qdrant":
		q, err := NewQdrant(&cfg.Index.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("初始化Qdrant失败: %w", err)
		}
		if err := q.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.Index.Qdrant.Endpoint).Msg("Qdrant暂不可用，将在请求时重试")
		}
		s.Vectors = q
	case "", "local":
		s.sqlite = NewSQLiteIndex(sessions.Root(), prefix)
		s.Vectors = s.sqlite
	default:
		return nil, fmt.Errorf("不支持的索引后端: %s", cfg.Index.Backend)
	}

	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		log.Info().Str("address", cfg.Redis.Address).Msg("初始化Redis会话登记表")
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("初始化Redis失败，使用进程内会话登记表")
		}
	}
	if s.Redis != nil {
		s.Registry = NewRedisSessionRegistry(s.Redis)
	} else {
		s.Registry = NewMemorySessionRegistry()
	}

	log.Info().
		Str("backend", cfg.Index.Backend).
		Str("storage_root", sessions.Root()).
		Bool("redis", s.Redis != nil).
		Msg("存储组件初始化完成")
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Named("storage")

	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			log.Error().Err(err).Msg("关闭本地索引失败")
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
