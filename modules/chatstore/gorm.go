package chatstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type chatRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	Name            string `gorm:"size:100"`
	IsGroup         bool
	LatestMessageID string           `gorm:"size:36"`
	Participants    []participantRow `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (chatRow) TableName() string { return "chats" }

type participantRow struct {
	ChatID string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"primaryKey;size:64;index"`
}

func (participantRow) TableName() string { return "chat_participants" }

type messageRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ChatID    string    `gorm:"size:36;index:idx_messages_chat_created,priority:1"`
	SenderID  string    `gorm:"size:64"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index:idx_messages_chat_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

type userStatusRow struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Status    string `gorm:"size:16"`
	UpdatedAt time.Time
}

func (userStatusRow) TableName() string { return "user_statuses" }

// SQLStore implements Store with GORM.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (or creates) a SQLite database and migrates it.
func OpenSQLite(path string, debug bool) (*SQLStore, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore migrates db and wraps it.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&chatRow{}, &participantRow{}, &messageRow{}, &userStatusRow{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// CreateChat creates a chat with the given participants.
func (s *SQLStore) CreateChat(ctx context.Context, name string, participants []string) (*domain.Chat, error) {
	if err := ValidateChatName(name); err != nil {
		return nil, err
	}
	users, err := ValidateParticipants(participants)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := chatRow{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   len(users) > 2,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, u := range users {
		row.Participants = append(row.Participants, participantRow{ChatID: row.ID, UserID: u})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return row.toDomain(), nil
}

// GetChat returns a chat with its participants.
func (s *SQLStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var row chatRow
	err := s.db.WithContext(ctx).Preload("Participants").First(&row, "id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return row.toDomain(), nil
}

// IsParticipant reports whether userID belongs to chatID.
func (s *SQLStore) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

// PersistMessage stores a message from a participant and bumps the chat's
// latest message.
func (s *SQLStore) PersistMessage(ctx context.Context, senderID, chatID, content string) (*domain.Message, error) {
	if err := ValidateMessage(content); err != nil {
		return nil, err
	}
	ok, err := s.IsParticipant(ctx, senderID, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.GetChat(ctx, chatID); err != nil {
			return nil, err
		}
		return nil, ErrNotParticipant
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	row := messageRow{
		ID:        id.String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&chatRow{}).Where("id = ?", chatID).Updates(map[string]any{
			"latest_message_id": row.ID,
			"updated_at":        row.CreatedAt,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	return row.toDomain(), nil
}

// History returns up to limit most recent messages, oldest first.
func (s *SQLStore) History(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]domain.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = *row.toDomain()
	}
	return out, nil
}

// ContactsOf returns the users that share at least one chat with userID.
func (s *SQLStore) ContactsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("chat_participants AS p1").
		Joins("JOIN chat_participants AS p2 ON p1.chat_id = p2.chat_id").
		Where("p1.user_id = ? AND p2.user_id <> ?", userID, userID).
		Distinct().
		Pluck("p2.user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	return ids, nil
}

// SetUserStatus records the user's latest status.
func (s *SQLStore) SetUserStatus(ctx context.Context, userID, status string, at time.Time) error {
	row := userStatusRow{UserID: userID, Status: status, UpdatedAt: at.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set user status: %w", err)
	}
	return nil
}

// UserStatus returns the user's last recorded status.
func (s *SQLStore) UserStatus(ctx context.Context, userID string) (*domain.UserStatus, error) {
	var row userStatusRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.UserStatus{UserID: userID, Status: domain.StatusOffline}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user status: %w", err)
	}
	return &domain.UserStatus{UserID: row.UserID, Status: row.Status, UpdatedAt: row.UpdatedAt}, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *chatRow) toDomain() *domain.Chat {
	c := &domain.Chat{
		ID:              r.ID,
		Name:            r.Name,
		IsGroup:         r.IsGroup,
		LatestMessageID: r.LatestMessageID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Participants:    make([]string, 0, len(r.Participants)),
	}
	for _, p := range r.Participants {
		c.Participants = append(c.Participants, p.UserID)
	}
	return c
}

func (r *messageRow) toDomain() *domain.Message {
	return &domain.Message{
		ID:        r.ID,
		RoomID:    r.ChatID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		ReadBy:    []string{r.SenderID},
		CreatedAt: r.CreatedAt,
	}
}
