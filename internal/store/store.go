// Package store persists session records and daemon settings to SQLite.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the SQLite database holding session history and settings.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the database at path, switching it to WAL mode and
// migrating the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&SavedSession{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession records a freshly started session.
func (s *Store) CreateSession(sess *SavedSession) error {
	if err := s.db.Create(sess).Error; err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession looks a session up by ID.
func (s *Store) GetSession(id string) (*SavedSession, error) {
	var sess SavedSession
	if err := s.db.First(&sess, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &sess, nil
}

// GetSessionByTitle returns the most recently updated session profile with
// the given title.
func (s *Store) GetSessionByTitle(title string) (*SavedSession, error) {
	var sess SavedSession
	if err := s.db.Order("updated_at DESC").First(&sess, "title = ?", title).Error; err != nil {
		return nil, fmt.Errorf("get session titled %q: %w", title, err)
	}
	return &sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions() ([]SavedSession, error) {
	var sessions []SavedSession
	if err := s.db.Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateGeometry records the latest negotiated size for a session.
func (s *Store) UpdateGeometry(id string, cols, rows int) error {
	return s.db.Model(&SavedSession{}).Where("id = ?", id).
		Updates(map[string]any{"cols": cols, "rows": rows}).Error
}

// AddTraffic bumps a session's byte counters.
func (s *Store) AddTraffic(id string, in, out int64) error {
	return s.db.Model(&SavedSession{}).Where("id = ?", id).
		Updates(map[string]any{
			"bytes_in":  gorm.Expr("bytes_in + ?", in),
			"bytes_out": gorm.Expr("bytes_out + ?", out),
		}).Error
}

// BumpReconnects increments a session's reconnect counter.
func (s *Store) BumpReconnects(id string) error {
	return s.db.Model(&SavedSession{}).Where("id = ?", id).
		Update("reconnects", gorm.Expr("reconnects + 1")).Error
}

// ReopenSession marks a previously closed session active again, as happens
// when a client reconnects with the same session id.
func (s *Store) ReopenSession(id string) error {
	return s.db.Model(&SavedSession{}).Where("id = ?", id).
		Updates(map[string]any{"status": "active", "closed_at": nil, "last_error": ""}).Error
}

// CloseSession marks a session finished. lastError may be empty for a clean
// close.
func (s *Store) CloseSession(id, lastError string) error {
	now := time.Now()
	return s.db.Model(&SavedSession{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":     "closed",
			"last_error": lastError,
			"closed_at":  &now,
		}).Error
}

// GetSetting returns a setting value, or fallback when the key is absent.
func (s *Store) GetSetting(key, fallback string) string {
	var setting Setting
	if err := s.db.First(&setting, "key = ?", key).Error; err != nil {
		return fallback
	}
	return setting.Value
}

// SetSetting creates or updates a setting.
func (s *Store) SetSetting(key, value string) error {
	setting := Setting{Key: key, Value: value}
	if err := s.db.Save(&setting).Error; err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
