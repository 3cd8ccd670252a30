package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"thought_engine/db"
	"thought_engine/logger"
	"thought_engine/models"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]{0,127}$`)

// InsightStores 按用户管理本地洞察库，每个用户一个 SQLite 文件
type InsightStores struct {
	dir    string
	mu     sync.Mutex
	stores map[string]*InsightStore
}

func NewInsightStores(dir string) *InsightStores {
	return &InsightStores{dir: dir, stores: make(map[string]*InsightStore)}
}

// For 返回用户的洞察库，首次访问时打开并建表
func (s *InsightStores) For(userID string) (*InsightStore, error) {
	if !userIDPattern.MatchString(userID) {
		return nil, fmt.Errorf("%w: user id %q", models.ErrInvalidInput, userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if store, ok := s.stores[userID]; ok {
		return store, nil
	}

	path := filepath.Join(s.dir, userID+".db")
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, &models.StoreWriteError{Op: "open", Err: err}
	}
	store, err := NewInsightStore(conn)
	if err != nil {
		conn.Close()
		return nil, &models.StoreWriteError{Op: "open", Err: err}
	}
	s.stores[userID] = store
	logger.Info("打开用户洞察库", "user_id", userID, "path", path)
	return store, nil
}

// Close 关闭所有已打开的洞察库
func (s *InsightStores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for userID, store := range s.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store of %s: %w", userID, err))
		}
		delete(s.stores, userID)
	}
	return errors.Join(errs...)
}
