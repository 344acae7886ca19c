package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"aitwin/internal/models"
)

// MessageLog is the append-only record of every message a user exchanges
type MessageLog interface {
	RecordMessage(ctx context.Context, userID, role, text string) (string, error)
	CountMessages(ctx context.Context, userID string) (int64, error)
}

// formatLogText renders a message the way it is persisted: "<role>: <content>"
func formatLogText(role, text string) string {
	return role + ": " + text
}

// SQLMessageLog stores messages in the messages table
type SQLMessageLog struct {
	db  *DB
	now func() time.Time
}

// NewSQLMessageLog creates a log over an initialized DB
func NewSQLMessageLog(db *DB) *SQLMessageLog {
	return &SQLMessageLog{db: db, now: time.Now}
}

func (l *SQLMessageLog) RecordMessage(ctx context.Context, userID, role, text string) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, text, created_at) VALUES (?, ?, ?, ?)`,
		id, userID, formatLogText(role, text), l.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record message: %w", err)
	}
	return id, nil
}

func (l *SQLMessageLog) CountMessages(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// History returns the newest limit records of a user, oldest first
func (l *SQLMessageLog) History(ctx context.Context, userID string, limit int) ([]models.PermanentRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, text, created_at FROM messages WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var records []models.PermanentRecord
	for rows.Next() {
		var (
			rec  models.PermanentRecord
			text string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &text, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		rec.Role, rec.Text = splitLogText(text)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func splitLogText(text string) (role, content string) {
	if idx := strings.Index(text, ": "); idx > 0 {
		return text[:idx], text[idx+2:]
	}
	return "", text
}

// MongoMessageLog stores messages in the messages collection
type MongoMessageLog struct {
	mongo *MongoDB
	now   func() time.Time
}

// NewMongoMessageLog creates a log over a connected MongoDB
func NewMongoMessageLog(m *MongoDB) *MongoMessageLog {
	return &MongoMessageLog{mongo: m, now: time.Now}
}

type mongoMessage struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (l *MongoMessageLog) RecordMessage(ctx context.Context, userID, role, text string) (string, error) {
	doc := mongoMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      formatLogText(role, text),
		CreatedAt: l.now().UTC(),
	}
	if _, err := l.mongo.Collection(CollectionMessages).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to record message: %w", err)
	}
	return doc.ID, nil
}

func (l *MongoMessageLog) CountMessages(ctx context.Context, userID string) (int64, error) {
	n, err := l.mongo.Collection(CollectionMessages).CountDocuments(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// History returns the newest limit records of a user, oldest first
func (l *MongoMessageLog) History(ctx context.Context, userID string, limit int) ([]models.PermanentRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := l.mongo.Collection(CollectionMessages).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	records := make([]models.PermanentRecord, len(docs))
	for i, doc := range docs {
		role, content := splitLogText(doc.Text)
		records[len(docs)-1-i] = models.PermanentRecord{
			ID:        doc.ID,
			UserID:    doc.UserID,
			Role:      role,
			Text:      content,
			CreatedAt: doc.CreatedAt,
		}
	}
	return records, nil
}
