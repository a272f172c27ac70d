package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/dimitrije/teamfocus-api/internal/services"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/dimitrije/teamfocus-api/tests/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

const testBacklogLimit = 50

type testEnv struct {
	authority *testutil.MockAuthority
	profiles  *testutil.MockProfileService
	rooms     *testutil.MockRoomService
	messages  *testutil.MockMessageService
	notices   *testutil.MockNoticeService
	admin     *testutil.MockAdminService
	bus       *realtime.Bus

	router http.Handler
	client *testutil.HTTPTestClient
	userID uuid.UUID
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		authority: new(testutil.MockAuthority),
		profiles:  new(testutil.MockProfileService),
		rooms:     new(testutil.MockRoomService),
		messages:  new(testutil.MockMessageService),
		notices:   new(testutil.MockNoticeService),
		admin:     new(testutil.MockAdminService),
		userID:    uuid.New(),
	}

	env.bus = realtime.NewBus(realtime.NewLocalTransport(), zerolog.Nop(), realtime.Options{BacklogLimit: testBacklogLimit})
	env.bus.Bind(env.messages)
	t.Cleanup(env.bus.Close)

	env.router = NewRouter(RouterConfig{
		JWT:      testutil.TestJWTService(),
		Sessions: env.authority,
		Auth:     NewAuthHandler(env.authority),
		Profile:  NewProfileHandler(env.authority, env.profiles),
		Rooms:    NewRoomHandler(env.rooms, env.messages, testBacklogLimit),
		Stream: NewStreamHandler(env.rooms, env.bus, env.authority, zerolog.Nop(), StreamOptions{
			BacklogLimit: testBacklogLimit,
			MaxRetries:   2,
		}),
		Notices: NewNoticeHandler(env.notices),
		Admin:   NewAdminHandler(env.admin),
	})
	env.client = testutil.NewHTTPTestClient(t, env.router)
	env.token = testutil.GenerateTestToken(t, env.userID, "alice@example.com")

	return env
}

// as makes the authority resolve the test identity to state and returns a
// client carrying its token.
func (e *testEnv) as(state session.State, roles ...string) *testutil.HTTPTestClient {
	s := session.Session{Identity: models.Identity{ID: e.userID, Email: "alice@example.com"}, State: state}
	if state == session.Active {
		s = activeSession(e.userID, roles...)
	}
	e.authority.On("Resolve", mock.Anything, e.userID).Return(s, nil)
	return e.client.As(e.token)
}

func (e *testEnv) assertExpectations(t *testing.T) {
	e.authority.AssertExpectations(t)
	e.profiles.AssertExpectations(t)
	e.rooms.AssertExpectations(t)
	e.messages.AssertExpectations(t)
	e.notices.AssertExpectations(t)
	e.admin.AssertExpectations(t)
}

func activeSession(userID uuid.UUID, roles ...string) session.Session {
	return session.Session{
		Identity: models.Identity{ID: userID, Email: "alice@example.com"},
		State:    session.Active,
		Profile:  &models.Profile{UserID: userID, DisplayName: "Alice"},
		Roles:    models.NewRoleSet(roles),
	}
}

func testGrant(userID uuid.UUID) *identity.Grant {
	return &identity.Grant{
		Identity: models.Identity{ID: userID, Email: "alice@example.com"},
		Tokens:   &services.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900},
	}
}

func testMessage(room *uuid.UUID, author uuid.UUID, seq int64, content string) models.Message {
	return models.Message{
		ID:         uuid.New(),
		RoomID:     room,
		UserID:     author,
		AuthorName: "Alice",
		Content:    content,
		Seq:        seq,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, int(seq), 0, time.UTC),
	}
}
