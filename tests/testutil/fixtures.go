package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// FixturePassword is the plaintext password of every fixture user.
const FixturePassword = "correct-horse"

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int
	hash    []byte
}

// NewFixtures creates a new fixtures factory
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// User is an identity created by CreateUser together with its profile.
type User struct {
	models.Identity
	Profile models.Profile
	Roles   []string
}

type userSeed struct {
	email       string
	displayName string
	banned      bool
	admin       bool
}

// UserOption configures a test user
type UserOption func(*userSeed)

func WithEmail(email string) UserOption {
	return func(s *userSeed) {
		s.email = email
	}
}

func WithDisplayName(name string) UserOption {
	return func(s *userSeed) {
		s.displayName = name
	}
}

func AsAdmin() UserOption {
	return func(s *userSeed) {
		s.admin = true
	}
}

func Banned() UserOption {
	return func(s *userSeed) {
		s.banned = true
	}
}

func (f *Fixtures) passwordHash(t *testing.T) []byte {
	t.Helper()
	if f.hash == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(FixturePassword), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("failed to hash fixture password: %v", err)
		}
		f.hash = hash
	}
	return f.hash
}

// CreateUser creates an identity with its profile and roles in one transaction.
func (f *Fixtures) CreateUser(t *testing.T, opts ...UserOption) *User {
	t.Helper()
	f.counter++

	seed := userSeed{
		email:       fmt.Sprintf("user%d@example.com", f.counter),
		displayName: fmt.Sprintf("Test User %d", f.counter),
	}
	for _, opt := range opts {
		opt(&seed)
	}

	ctx := context.Background()
	tx, err := f.db.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	user := &User{Identity: models.Identity{Email: seed.email}}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, seed.email, string(f.passwordHash(t))).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name, is_banned)
		VALUES ($1, $2, $3)
		RETURNING user_id, display_name, bio, avatar_url, is_banned, created_at, updated_at
	`, user.ID, seed.displayName, seed.banned).Scan(
		&user.Profile.UserID, &user.Profile.DisplayName, &user.Profile.Bio, &user.Profile.AvatarURL,
		&user.Profile.IsBanned, &user.Profile.CreatedAt, &user.Profile.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}

	user.Roles = []string{models.RoleUser}
	if seed.admin {
		user.Roles = append(user.Roles, models.RoleAdmin)
	}
	for _, role := range user.Roles {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role)
			VALUES ($1, $2)
		`, user.ID, role); err != nil {
			t.Fatalf("failed to assign role %s: %v", role, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	return user
}

// CreateRoom creates a chat room owned by creator.
func (f *Fixtures) CreateRoom(t *testing.T, creator *User) *models.ChatRoom {
	t.Helper()
	f.counter++

	room := &models.ChatRoom{Name: fmt.Sprintf("room-%d", f.counter)}
	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO chat_rooms (name, created_by)
		VALUES ($1, $2)
		RETURNING id, created_by, created_at
	`, room.Name, creator.ID).Scan(&room.ID, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}

	return room
}

// CreateNotice inserts a notice directly, bypassing the admin check.
func (f *Fixtures) CreateNotice(t *testing.T, author *User, pinned bool) *models.Notice {
	t.Helper()
	f.counter++

	notice := &models.Notice{
		UserID:   author.ID,
		Title:    fmt.Sprintf("Notice %d", f.counter),
		Content:  "content",
		IsPinned: pinned,
	}
	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO notices (user_id, title, content, is_pinned)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, notice.UserID, notice.Title, notice.Content, notice.IsPinned).Scan(&notice.ID, &notice.CreatedAt, &notice.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create notice: %v", err)
	}

	return notice
}

// MessageCount counts stored rows for a room, tombstones included.
func (f *Fixtures) MessageCount(t *testing.T, room *uuid.UUID) int {
	t.Helper()

	var n int
	err := f.db.Pool.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM messages WHERE room_id IS NOT DISTINCT FROM $1
	`, room).Scan(&n)
	if err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	return n
}
