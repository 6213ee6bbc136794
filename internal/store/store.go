// Package store persists the transfer history.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

type Transfer struct {
	ID        uint      `gorm:"primaryKey"`
	Direction Direction `gorm:"index;not null"`
	FileName  string    `gorm:"not null"`
	Size      int64
	MIMEType  string
	LocalID   string
	PeerCount int
	CreatedAt int64 `gorm:"index"`
}

func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite serializes writers, and ":memory:" is per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Transfer{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

type HistoryStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db, now: time.Now}
}

func (s *HistoryStore) Record(ctx context.Context, t *Transfer) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = s.now().Unix()
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("recording transfer %q: %w", t.FileName, err)
	}
	return nil
}

// List returns the newest transfers first. A limit <= 0 returns everything.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]Transfer, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var transfers []Transfer
	if err := q.Find(&transfers).Error; err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return transfers, nil
}

// Delete removes one transfer. Deleting a missing row is not an error.
func (s *HistoryStore) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&Transfer{}, id).Error; err != nil {
		return fmt.Errorf("deleting transfer %d: %w", id, err)
	}
	return nil
}

func (s *HistoryStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Transfer{}).Error
}

func (s *HistoryStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
