package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"aitwin/internal/models"
)

var (
	// ErrUserExists is returned when the username is already taken
	ErrUserExists = errors.New("username already taken")
	// ErrUserNotFound is returned when no user has the username
	ErrUserNotFound = errors.New("user not found")
)

// UserStore persists registered accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// prepareUser fills in the generated fields of a new user
func prepareUser(user *models.User, now time.Time) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now.UTC()
	}
}

// SQLUserStore stores users in the users table
type SQLUserStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLUserStore creates a user store over an initialized DB
func NewSQLUserStore(db *DB) *SQLUserStore {
	return &SQLUserStore{db: db, now: time.Now}
}

func (s *SQLUserStore) CreateUser(ctx context.Context, user *models.User) error {
	prepareUser(user, s.now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// isUniqueViolation matches the duplicate-key errors of both SQL engines
func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// MongoUserStore stores users in the users collection
type MongoUserStore struct {
	mongo *MongoDB
	now   func() time.Time
}

// NewMongoUserStore creates a user store over a connected MongoDB
func NewMongoUserStore(m *MongoDB) *MongoUserStore {
	return &MongoUserStore{mongo: m, now: time.Now}
}

func (s *MongoUserStore) CreateUser(ctx context.Context, user *models.User) error {
	prepareUser(user, s.now())

	if _, err := s.mongo.Collection(CollectionUsers).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.mongo.Collection(CollectionUsers).FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
