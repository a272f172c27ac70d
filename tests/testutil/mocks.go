package testutil

import (
	"context"

	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAuthority mocks the session.Authority surface used by handlers
type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) signIn(args mock.Arguments) (session.Session, *identity.Grant, error) {
	s, _ := args.Get(0).(session.Session)
	grant, _ := args.Get(1).(*identity.Grant)
	return s, grant, args.Error(2)
}

func (m *MockAuthority) Establish(ctx context.Context, creds identity.Credentials) (session.Session, *identity.Grant, error) {
	return m.signIn(m.Called(ctx, creds))
}

func (m *MockAuthority) SignUp(ctx context.Context, creds identity.Credentials, inviteCode string, meta identity.Metadata) (session.Session, *identity.Grant, error) {
	return m.signIn(m.Called(ctx, creds, inviteCode, meta))
}

func (m *MockAuthority) Refresh(ctx context.Context, refreshToken string) (session.Session, *identity.Grant, error) {
	return m.signIn(m.Called(ctx, refreshToken))
}

func (m *MockAuthority) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	args := m.Called(ctx, userID, current, next)
	return args.Error(0)
}

func (m *MockAuthority) SignOut(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuthority) RefreshProfile(ctx context.Context, userID uuid.UUID) (session.Session, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(session.Session)
	return s, args.Error(1)
}

func (m *MockAuthority) Resolve(ctx context.Context, ident models.Identity) (session.Session, error) {
	args := m.Called(ctx, ident.ID)
	s, _ := args.Get(0).(session.Session)
	return s, args.Error(1)
}

func (m *MockAuthority) Watch(ctx context.Context, userID uuid.UUID) <-chan session.Session {
	args := m.Called(ctx, userID)
	return args.Get(0).(chan session.Session)
}

// MockProfileService mocks the ProfileService
type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) Update(ctx context.Context, userID uuid.UUID, displayName, bio, avatarURL *string) (*models.Profile, error) {
	args := m.Called(ctx, userID, displayName, bio, avatarURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

// MockRoomService mocks the RoomService
type MockRoomService struct {
	mock.Mock
}

func (m *MockRoomService) Create(ctx context.Context, name string, creator uuid.UUID) (*models.ChatRoom, error) {
	args := m.Called(ctx, name, creator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockRoomService) List(ctx context.Context, viewer uuid.UUID) ([]models.ChatRoom, error) {
	args := m.Called(ctx, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatRoom), args.Error(1)
}

func (m *MockRoomService) Get(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

// MockMessageService mocks the MessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) Insert(ctx context.Context, author uuid.UUID, room *uuid.UUID, content string) (*models.Message, error) {
	args := m.Called(ctx, author, room, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) Delete(ctx context.Context, id, requester uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, id, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) Backlog(ctx context.Context, room *uuid.UUID, since int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, room, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessageService) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// MockNoticeService mocks the NoticeService
type MockNoticeService struct {
	mock.Mock
}

func (m *MockNoticeService) List(ctx context.Context, viewer uuid.UUID) ([]models.Notice, error) {
	args := m.Called(ctx, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notice), args.Error(1)
}

func (m *MockNoticeService) Create(ctx context.Context, author uuid.UUID, title, content string, pinned bool) (*models.Notice, error) {
	args := m.Called(ctx, author, title, content, pinned)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notice), args.Error(1)
}

func (m *MockNoticeService) TogglePin(ctx context.Context, requester, id uuid.UUID) (*models.Notice, error) {
	args := m.Called(ctx, requester, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notice), args.Error(1)
}

func (m *MockNoticeService) Delete(ctx context.Context, requester, id uuid.UUID) error {
	args := m.Called(ctx, requester, id)
	return args.Error(0)
}

// MockAdminService mocks the AdminService
type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) ListUsers(ctx context.Context, admin uuid.UUID) ([]models.UserSummary, error) {
	args := m.Called(ctx, admin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserSummary), args.Error(1)
}

func (m *MockAdminService) SetBanned(ctx context.Context, admin, target uuid.UUID, banned bool) error {
	args := m.Called(ctx, admin, target, banned)
	return args.Error(0)
}

func (m *MockAdminService) DeleteUser(ctx context.Context, admin, target uuid.UUID) error {
	args := m.Called(ctx, admin, target)
	return args.Error(0)
}
