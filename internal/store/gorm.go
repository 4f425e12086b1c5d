package store

import (
	"context"
	"time"

	"github.com/LegacyAung/chat-app/internal/relay"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MessageRecord is the persisted form of a relayed chat message. History is
// queried by user pair, matching how the external client fetches it.
type MessageRecord struct {
	ID             uint   `gorm:"primaryKey"`
	RoomID         string `gorm:"index;size:160;not null"`
	Sender         string `gorm:"index:idx_msg_pair;size:64;not null"`
	Receiver       string `gorm:"index:idx_msg_pair;size:64;not null"`
	SenderUsername string `gorm:"size:64"`
	Body           string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

// GormStore implements relay.MessageStore on a gorm database.
type GormStore struct {
	db *gorm.DB
}

var _ relay.MessageStore = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&MessageRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// ConnectPostgres establishes the Postgres connection with a short retry
// loop to wait for the database container to come up.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

func (s *GormStore) Append(ctx context.Context, msg relay.ChatMessage) error {
	rec := MessageRecord{
		RoomID:         msg.RoomID,
		Sender:         msg.Sender,
		Receiver:       msg.Receiver,
		SenderUsername: msg.SenderUsername,
		Body:           msg.Body,
		CreatedAt:      msg.SentAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) History(ctx context.Context, userA, userB string) ([]relay.ChatMessage, error) {
	var recs []MessageRecord
	err := s.db.WithContext(ctx).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", userA, userB, userB, userA).
		Order("id asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]relay.ChatMessage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, relay.ChatMessage{
			RoomID:         rec.RoomID,
			Sender:         rec.Sender,
			Receiver:       rec.Receiver,
			SenderUsername: rec.SenderUsername,
			Body:           rec.Body,
			SentAt:         rec.CreatedAt,
		})
	}
	return out, nil
}
