package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type kvRow struct {
	Namespace string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

func (kvRow) TableName() string { return "client_session_kv" }

// SQLiteKV stores session keys in a local SQLite database through gorm.
type SQLiteKV struct {
	db        *gorm.DB
	namespace string
}

func OpenSQLiteKV(path, namespace string) (*SQLiteKV, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite session path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir sqlite session dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open sqlite session db: %w", err)
	}
	return NewSQLiteKV(db, namespace)
}

func NewSQLiteKV(db *gorm.DB, namespace string) (*SQLiteKV, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, fmt.Errorf("session namespace is required")
	}
	if err := db.AutoMigrate(&kvRow{}); err != nil {
		return nil, fmt.Errorf("migrate client_session_kv: %w", err)
	}
	return &SQLiteKV{db: db, namespace: namespace}, nil
}

func (s *SQLiteKV) GetMany(keys []string) (map[string]string, error) {
	var rows []kvRow
	if err := s.db.Where("namespace = ? AND key IN ?", s.namespace, keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query session keys: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *SQLiteKV) PutMany(values map[string]string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for k, v := range values {
			row := kvRow{Namespace: s.namespace, Key: k, Value: v}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("upsert session key %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (s *SQLiteKV) DeleteMany(keys []string) error {
	err := s.db.Where("namespace = ? AND key IN ?", s.namespace, keys).Delete(&kvRow{}).Error
	if err != nil {
		return fmt.Errorf("delete session keys: %w", err)
	}
	return nil
}

func (s *SQLiteKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
