package tutor

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lumikids/tutorflow/types"
)

// conversationRecord is the persisted form of one message.
type conversationRecord struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  string    `gorm:"index;size:64;not null"`
	Role       string    `gorm:"size:16;not null"`
	Content    string    `gorm:"type:text;not null"`
	TokenCount int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"index"`
}

func (conversationRecord) TableName() string { return "conversation_messages" }

// GormStore is the SQL-backed ConversationStore. The driver is chosen from
// the config, so the same code serves sqlite for development and tests and
// MySQL/Postgres for production.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore connects with the named driver (sqlite, mysql, postgres),
// migrates the schema and returns the store.
func OpenGormStore(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, mysql, postgres)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing connection and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&conversationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate conversation schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) History(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	query := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []conversationRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}

	// Newest-first from the query; flip back to chronological.
	messages := make([]types.Message, len(records))
	for i, rec := range records {
		messages[len(records)-1-i] = types.Message{
			Role:       types.Role(rec.Role),
			Content:    rec.Content,
			Timestamp:  rec.CreatedAt,
			TokenCount: rec.TokenCount,
		}
	}
	return messages, nil
}

func (s *GormStore) Append(ctx context.Context, sessionID string, messages ...types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	records := make([]conversationRecord, len(messages))
	for i, msg := range messages {
		createdAt := msg.Timestamp
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		records[i] = conversationRecord{
			SessionID:  sessionID,
			Role:       string(msg.Role),
			Content:    msg.Content,
			TokenCount: msg.TokenCount,
			CreatedAt:  createdAt,
		}
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("append session history: %w", err)
	}
	return nil
}

// Cleanup deletes messages older than the retention window and returns the
// number removed.
func (s *GormStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&conversationRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup session history: %w", result.Error)
	}
	return result.RowsAffected, nil
}
