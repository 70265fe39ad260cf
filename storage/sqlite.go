package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type SQLiteConfig struct {
	Path        string        `json:"path"`
	BusyTimeout time.Duration `json:"busy_timeout"`
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStorage persists keys to an embedded sqlite file. Each key is a
// single row, so writes touch one value without rewriting the rest.
type SQLiteStorage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	config *SQLiteConfig
	db     *sql.DB
	state  atomic.Value
}

func NewSQLiteStorage(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.Storage, error) {
	sqliteConfig := &SQLiteConfig{
		BusyTimeout: 5 * time.Second,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, sqliteConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite storage config")
		}
	}

	if sqliteConfig.Path == "" {
		return nil, types.NewErrorf("sqlite storage requires a path")
	}

	storageCtx, cancel := context.WithCancel(ctx)

	s := &SQLiteStorage{
		ctx:    storageCtx,
		cancel: cancel,
		logger: logger,
		config: sqliteConfig,
	}

	s.state.Store(StateStopped)

	return s, nil
}

func (s *SQLiteStorage) Read(key string) ([]byte, error) {
	if !s.IsRunning() {
		return nil, types.ErrStorageUnavailable
	}

	var value []byte
	err := s.db.QueryRowContext(s.ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, types.Errorf(types.ErrStorageKeyNotFound, "key: %s", key)
	}
	if err != nil {
		return nil, types.WrapError(err, "failed to read sqlite key")
	}

	return value, nil
}

func (s *SQLiteStorage) Write(key string, data []byte) error {
	if key == "" {
		return types.ErrStorageKeyIsEmpty
	}
	if !s.IsRunning() {
		return types.ErrStorageUnavailable
	}

	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, data, time.Now().UnixMilli())
	if err != nil {
		return types.WrapError(err, "failed to write sqlite key")
	}

	return nil
}

func (s *SQLiteStorage) Delete(key string) error {
	if !s.IsRunning() {
		return types.ErrStorageUnavailable
	}

	_, err := s.db.ExecContext(s.ctx, "DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return types.WrapError(err, "failed to delete sqlite key")
	}

	return nil
}

func (s *SQLiteStorage) Keys() ([]string, error) {
	if !s.IsRunning() {
		return nil, types.ErrStorageUnavailable
	}

	rows, err := s.db.QueryContext(s.ctx, "SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, types.WrapError(err, "failed to list sqlite keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan sqlite key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate sqlite keys")
	}

	return keys, nil
}

func (s *SQLiteStorage) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("SQLite storage is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(s.config.Path), 0755); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to create sqlite storage directory")
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", s.config.Path, s.config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to open sqlite storage")
	}

	if err := db.PingContext(s.ctx); err != nil {
		db.Close()
		s.setState(StateStopped)
		return types.WrapError(err, "failed to ping sqlite storage")
	}

	if _, err := db.ExecContext(s.ctx, sqliteSchema); err != nil {
		db.Close()
		s.setState(StateStopped)
		return types.WrapError(err, "failed to create sqlite schema")
	}

	s.db = db

	s.logger.Info("SQLite storage started", zap.String("path", s.config.Path))
	return nil
}

func (s *SQLiteStorage) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("SQLite storage is not running")
		return types.ErrNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	s.cancel()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close sqlite storage", zap.Error(err))
		return err
	}

	s.logger.Info("SQLite storage stopped", zap.String("path", s.config.Path))
	return nil
}

func (s *SQLiteStorage) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *SQLiteStorage) getState() State {
	return s.state.Load().(State)
}

func (s *SQLiteStorage) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *SQLiteStorage) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
