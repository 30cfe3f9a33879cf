package chatstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
	statusCollection   = "user_statuses"
)

type chatDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	IsGroup       bool      `bson:"is_group"`
	Users         []string  `bson:"users"`
	LatestMessage string    `bson:"latest_message,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type messageDoc struct {
	ID        string    `bson:"_id"`
	Chat      string    `bson:"chat"`
	Sender    string    `bson:"sender"`
	Content   string    `bson:"content"`
	ReadBy    []string  `bson:"read_by"`
	CreatedAt time.Time `bson:"created_at"`
}

type statusDoc struct {
	UserID    string    `bson:"_id"`
	Status    string    `bson:"status"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client   *mongo.Client
	chats    *mongo.Collection
	messages *mongo.Collection
	statuses *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// OpenMongo connects to uri, verifies the connection and ensures indexes.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	clientOptions := options.Client().ApplyURI(uri).SetAppName("chat-realtime")
	clientOptions.SetMinPoolSize(2)
	clientOptions.SetMaxPoolSize(50)
	clientOptions.SetMaxConnIdleTime(5 * time.Minute)
	clientOptions.SetConnectTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		chats:    db.Collection(chatsCollection),
		messages: db.Collection(messagesCollection),
		statuses: db.Collection(statusCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "users", Value: 1}},
		Options: options.Index().SetName("chats_users"),
	}); err != nil {
		return fmt.Errorf("failed to create chats index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("messages_chat_created"),
	}); err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}
	return nil
}

// CreateChat creates a chat with the given participants.
func (s *MongoStore) CreateChat(ctx context.Context, name string, participants []string) (*domain.Chat, error) {
	if err := ValidateChatName(name); err != nil {
		return nil, err
	}
	users, err := ValidateParticipants(participants)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := chatDoc{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   len(users) > 2,
		Users:     users,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return doc.toDomain(), nil
}

// GetChat returns a chat by ID.
func (s *MongoStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.D{{Key: "_id", Value: chatID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return doc.toDomain(), nil
}

// IsParticipant reports whether userID belongs to chatID.
func (s *MongoStore) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	n, err := s.chats.CountDocuments(ctx,
		bson.D{{Key: "_id", Value: chatID}, {Key: "users", Value: userID}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

// PersistMessage stores a message from a participant and bumps the chat's
// latest message.
func (s *MongoStore) PersistMessage(ctx context.Context, senderID, chatID, content string) (*domain.Message, error) {
	if err := ValidateMessage(content); err != nil {
		return nil, err
	}
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	doc := messageDoc{
		ID:        id.String(),
		Chat:      chatID,
		Sender:    senderID,
		Content:   content,
		ReadBy:    []string{senderID},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if _, err := s.chats.UpdateByID(ctx, chatID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "latest_message", Value: doc.ID},
		{Key: "updated_at", Value: doc.CreatedAt},
	}}}); err != nil {
		return nil, fmt.Errorf("failed to update latest message: %w", err)
	}
	return doc.toDomain(), nil
}

// History returns up to limit most recent messages, oldest first.
func (s *MongoStore) History(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cur, err := s.messages.Find(ctx, bson.D{{Key: "chat", Value: chatID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	out := make([]domain.Message, len(docs))
	for i, doc := range docs {
		out[len(docs)-1-i] = *doc.toDomain()
	}
	return out, nil
}

// ContactsOf returns the users that share at least one chat with userID.
func (s *MongoStore) ContactsOf(ctx context.Context, userID string) ([]string, error) {
	values, err := s.chats.Distinct(ctx, "users", bson.D{{Key: "users", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != userID {
			out = append(out, id)
		}
	}
	return out, nil
}

// SetUserStatus records the user's latest status.
func (s *MongoStore) SetUserStatus(ctx context.Context, userID, status string, at time.Time) error {
	doc := statusDoc{UserID: userID, Status: status, UpdatedAt: at.UTC()}
	_, err := s.statuses.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set user status: %w", err)
	}
	return nil
}

// UserStatus returns the user's last recorded status.
func (s *MongoStore) UserStatus(ctx context.Context, userID string) (*domain.UserStatus, error) {
	var doc statusDoc
	err := s.statuses.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &domain.UserStatus{UserID: userID, Status: domain.StatusOffline}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user status: %w", err)
	}
	return &domain.UserStatus{UserID: doc.UserID, Status: doc.Status, UpdatedAt: doc.UpdatedAt}, nil
}

// Ping checks the connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d *chatDoc) toDomain() *domain.Chat {
	return &domain.Chat{
		ID:              d.ID,
		Name:            d.Name,
		IsGroup:         d.IsGroup,
		Participants:    d.Users,
		LatestMessageID: d.LatestMessage,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (d *messageDoc) toDomain() *domain.Message {
	return &domain.Message{
		ID:        d.ID,
		RoomID:    d.Chat,
		SenderID:  d.Sender,
		Content:   d.Content,
		ReadBy:    d.ReadBy,
		CreatedAt: d.CreatedAt,
	}
}
