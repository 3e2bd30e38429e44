package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/storage"
)

// MockVectorBackend 记录被删除的命名空间，namespaces 模拟后端中现存的集合
type MockVectorBackend struct {
	mu         sync.Mutex
	dropped    []string
	namespaces []string
	dropErr    error
	listErr    error
}

func (m *MockVectorBackend) Create(context.Context, string, int) error { return nil }

func (m *MockVectorBackend) Upsert(context.Context, string, []*schema.Document, [][]float64) error {
	return nil
}

func (m *MockVectorBackend) Search(context.Context, string, []float64, int) ([]*schema.Document, error) {
	return nil, nil
}

func (m *MockVectorBackend) Drop(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropErr != nil {
		return m.dropErr
	}
	m.dropped = append(m.dropped, namespace)
	kept := m.namespaces[:0]
	for _, ns := range m.namespaces {
		if ns != namespace {
			kept = append(kept, ns)
		}
	}
	m.namespaces = kept
	return nil
}

func (m *MockVectorBackend) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var names []string
	for _, ns := range m.namespaces {
		if strings.HasPrefix(ns, prefix) {
			names = append(names, ns)
		}
	}
	return names, nil
}

// writeStaleSession 创建一个创建时间为 age 之前的会话目录
func writeStaleSession(t *testing.T, root, id string, age time.Duration) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	created := time.Now().Add(-age).UTC().Format(time.RFC3339Nano)
	require.NoError(t, os.WriteFile(filepath.Join(dir, constants.SessionMarkerFile), []byte(created), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, constants.LocalIndexFile), []byte("x"), 0o644))
}

func listRoot(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestSweeper_RemovesOnlyStaleSessions(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	registry := storage.NewMemorySessionRegistry()
	vectors := &MockVectorBackend{}
	ctx := context.Background()

	writeStaleSession(t, store.Root(), "old", 48*time.Hour)
	require.NoError(t, registry.Register(ctx, "old", time.Now().Add(-48*time.Hour)))
	_, err = store.Create("fresh")
	require.NoError(t, err)
	require.NoError(t, registry.Register(ctx, "fresh", time.Now()))

	s := NewSweeper(store, registry, vectors, "resume_", 24*time.Hour)
	report := s.Sweep(ctx)

	assert.Equal(t, SweepReport{Scanned: 2, Removed: 1}, report)
	assert.Equal(t, []string{"fresh"}, listRoot(t, store.Root()))
	assert.Equal(t, []string{"resume_old"}, vectors.dropped)
	assert.Equal(t, 1, registry.Len())
}

func TestSweeper_Idempotent(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	writeStaleSession(t, store.Root(), "a", 30*time.Hour)
	writeStaleSession(t, store.Root(), "b", 25*time.Hour)
	_, err = store.Create("c")
	require.NoError(t, err)

	s := NewSweeper(store, storage.NewMemorySessionRegistry(), &MockVectorBackend{}, "resume_", 0)

	first := s.Sweep(context.Background())
	assert.Equal(t, 2, first.Removed)
	after := listRoot(t, store.Root())

	second := s.Sweep(context.Background())
	assert.Zero(t, second.Removed)
	assert.Zero(t, second.Errors)
	assert.Equal(t, after, listRoot(t, store.Root()))
}

func TestSweeper_RegistryOnlySessions(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	registry := storage.NewMemorySessionRegistry()
	vectors := &MockVectorBackend{}
	ctx := context.Background()

	// 远端集合残留，本地目录早已删除
	require.NoError(t, registry.Register(ctx, "remote", time.Now().Add(-72*time.Hour)))

	s := NewSweeper(store, registry, vectors, "resume_", 24*time.Hour)
	report := s.Sweep(ctx)

	assert.Equal(t, SweepReport{Scanned: 1, Removed: 1}, report)
	assert.Equal(t, []string{"resume_remote"}, vectors.dropped)
	assert.Zero(t, registry.Len())
}

func TestSweeper_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := storage.NewSessionStore(root)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	s := NewSweeper(store, nil, nil, "resume_", time.Hour)
	assert.Equal(t, SweepReport{}, s.Sweep(context.Background()))
}

func TestSweeper_TriggerAsyncCoalesces(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	writeStaleSession(t, store.Root(), "old", 48*time.Hour)

	s := NewSweeper(store, storage.NewMemorySessionRegistry(), &MockVectorBackend{}, "resume_", time.Hour)
	s.running.Store(true)
	assert.False(t, s.TriggerAsync(), "已有清理在进行时不应再启动")
	s.running.Store(false)

	assert.True(t, s.TriggerAsync())
	s.Wait()
	assert.Empty(t, listRoot(t, store.Root()))
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	writeStaleSession(t, store.Root(), "old", 48*time.Hour)
	s := NewSweeper(store, nil, nil, "resume_", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(listRoot(t, store.Root())) == 0
	}, time.Second, 10*time.Millisecond, "启动时应立即清理一次")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("清理任务未在取消后退出")
	}
}

func TestSweeper_AdoptsOrphanIndexes(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	registry := storage.NewMemorySessionRegistry()
	ctx := context.Background()

	_, err = store.Create("local")
	require.NoError(t, err)
	require.NoError(t, registry.Register(ctx, "live", time.Now()))
	vectors := &MockVectorBackend{namespaces: []string{"resume_orphan", "resume_live", "resume_local", "other_x"}}

	s := NewSweeper(store, registry, vectors, "resume_", 24*time.Hour)
	first := s.Sweep(ctx)
	assert.Equal(t, 1, first.Adopted)
	assert.Zero(t, first.Errors)
	assert.Empty(t, vectors.dropped, "无主索引先登记，不立即删除")
	assert.Equal(t, 2, registry.Len())

	// 过期后删除无主索引，存活会话不受影响
	s.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	require.NoError(t, registry.Unregister(ctx, "live"))
	require.NoError(t, registry.Register(ctx, "live", time.Now().Add(25*time.Hour)))
	second := s.Sweep(ctx)
	assert.Contains(t, vectors.dropped, "resume_orphan")
	assert.NotContains(t, vectors.dropped, "resume_live")
	assert.Zero(t, second.Adopted)
	assert.Equal(t, 1, registry.Len())
}

func TestSweeper_KeepsRegistrationWhenDropFails(t *testing.T) {
	store, err := storage.NewSessionStore(t.TempDir())
	require.NoError(t, err)
	registry := storage.NewMemorySessionRegistry()
	vectors := &MockVectorBackend{namespaces: []string{"resume_remote"}, dropErr: errors.New("qdrant down")}
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, "remote", time.Now().Add(-48*time.Hour)))

	s := NewSweeper(store, registry, vectors, "resume_", 24*time.Hour)
	report := s.Sweep(ctx)
	assert.Equal(t, 1, report.Errors)
	assert.Zero(t, report.Adopted)
	assert.Equal(t, 1, registry.Len(), "索引未删除时保留登记以便重试")

	vectors.dropErr = nil
	report = s.Sweep(ctx)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, []string{"resume_remote"}, vectors.dropped)
	assert.Zero(t, registry.Len())
}
