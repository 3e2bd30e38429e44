package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-analyzer/internal/constants"
)

// ErrSessionExists 会话ID已被占用
var ErrSessionExists = errors.New("会话已存在")

// SessionEntry 存储根目录下的一个条目
type SessionEntry struct {
	ID        string
	Path      string
	IsDir     bool
	CreatedAt time.Time
}

// SessionStore 管理会话索引文件所在的存储根目录，每个会话占用 {root}/{sessionID}
type SessionStore struct {
	root string
	now  func() time.Time
}

// NewSessionStore 创建会话存储，根目录不存在时自动创建
func NewSessionStore(root string) (*SessionStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("会话存储根目录不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建会话存储根目录失败: %w", err)
	}
	return &SessionStore{root: root, now: time.Now}, nil
}

// Root 返回存储根目录
func (s *SessionStore) Root() string {
	return s.root
}

// Path 返回会话目录路径
func (s *SessionStore) Path(id string) string {
	return filepath.Join(s.root, id)
}

// Create 创建会话目录并写入创建时间标记；目录已存在时返回 ErrSessionExists
func (s *SessionStore) Create(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("非法的会话ID: %q", id)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("创建会话存储根目录失败: %w", err)
	}

	dir := s.Path(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
		}
		return "", fmt.Errorf("创建会话目录失败: %w", err)
	}

	marker := filepath.Join(dir, constants.SessionMarkerFile)
	if err := os.WriteFile(marker, []byte(s.now().UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("写入会话标记失败: %w", err)
	}
	return dir, nil
}

// Remove 递归删除会话目录，目录不存在视为成功
func (s *SessionStore) Remove(id string) error {
	if id == "" {
		return nil
	}
	return removeAll(s.Path(id))
}

// RemoveEntry 删除根目录下的任意条目（会话目录或残留文件）
func (s *SessionStore) RemoveEntry(entry SessionEntry) error {
	return removeAll(entry.Path)
}

// Exists 判断会话目录是否存在
func (s *SessionStore) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Entries 列出根目录下的所有条目及其创建时间
// 优先读取会话标记文件，缺失时退回到修改时间；扫描期间消失的条目被跳过。
func (s *SessionStore) Entries() ([]SessionEntry, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取会话存储根目录失败: %w", err)
	}

	entries := make([]SessionEntry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			// 条目可能已被并发的会话清理删除
			continue
		}
		entry := SessionEntry{
			ID:        item.Name(),
			Path:      filepath.Join(s.root, item.Name()),
			IsDir:     item.IsDir(),
			CreatedAt: info.ModTime(),
		}
		if entry.IsDir {
			if created, ok := readMarker(entry.Path); ok {
				entry.CreatedAt = created
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readMarker(dir string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(dir, constants.SessionMarkerFile))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
