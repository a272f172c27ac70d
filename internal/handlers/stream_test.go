package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// streamRecorder lets the test read an event stream while the handler is still writing it.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu  sync.Mutex
	buf bytes.Buffer
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *streamRecorder) WriteString(s string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.WriteString(s)
}

func (r *streamRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *streamRecorder) waitFor(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(r.body(), substr)
	}, 2*time.Second, 5*time.Millisecond, "stream never contained %q; got:\n%s", substr, r.body())
}

func openStream(env *testEnv, path string) (*streamRecorder, <-chan struct{}, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+env.token)

	rec := newStreamRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.router.ServeHTTP(rec, req)
	}()
	return rec, done, cancel
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return")
	}
}

func TestStreamHandler_BacklogLiveThenRevoked(t *testing.T) {
	env := newTestEnv(t)
	env.as(session.Active)

	old := testMessage(nil, env.userID, 1, "from the backlog")
	live := testMessage(nil, env.userID, 2, "sent while watching")

	subscribed := make(chan struct{})
	env.messages.On("Backlog", mock.Anything, (*uuid.UUID)(nil), int64(0), testBacklogLimit).
		Return([]models.Message{old}, nil).
		Run(func(mock.Arguments) { close(subscribed) }).
		Once()
	env.messages.On("GetByID", mock.Anything, live.ID).Return(&live, nil)

	sessions := make(chan session.Session, 1)
	sessions <- activeSession(env.userID)
	env.authority.On("Watch", mock.Anything, env.userID).Return(sessions)

	rec, done, cancel := openStream(env, "/api/v1/rooms/global/events")
	defer cancel()

	<-subscribed
	rec.waitFor(t, "from the backlog")

	require.NoError(t, env.bus.Publish(context.Background(), realtime.MessageNotified(&live)))
	rec.waitFor(t, "sent while watching")

	sessions <- session.Session{Identity: models.Identity{ID: env.userID}, State: session.Revoked}
	waitDone(t, done)

	body := rec.body()
	assert.Contains(t, body, "revoked")
	assert.Less(t, strings.Index(body, "from the backlog"), strings.Index(body, "sent while watching"))
}

func TestStreamHandler_TombstoneRemovesMessage(t *testing.T) {
	env := newTestEnv(t)
	env.as(session.Active)

	roomID := uuid.New()
	msg := testMessage(&roomID, env.userID, 1, "regrettable")

	env.rooms.On("Get", mock.Anything, roomID).Return(&models.ChatRoom{ID: roomID, Name: "general"}, nil)
	subscribed := make(chan struct{})
	env.messages.On("Backlog", mock.Anything, &roomID, int64(0), testBacklogLimit).
		Return([]models.Message{msg}, nil).
		Run(func(mock.Arguments) { close(subscribed) }).
		Once()

	sessions := make(chan session.Session, 1)
	sessions <- activeSession(env.userID)
	env.authority.On("Watch", mock.Anything, env.userID).Return(sessions)

	rec, done, cancel := openStream(env, "/api/v1/rooms/"+roomID.String()+"/events")

	<-subscribed
	rec.waitFor(t, "regrettable")

	require.NoError(t, env.bus.Publish(context.Background(), realtime.TombstoneNotified(&msg)))
	rec.waitFor(t, "removed")
	assert.Contains(t, rec.body(), msg.ID.String())

	cancel()
	waitDone(t, done)
}

func TestStreamHandler_PendingKeepsStreaming(t *testing.T) {
	env := newTestEnv(t)
	env.as(session.Active)

	subscribed := make(chan struct{})
	env.messages.On("Backlog", mock.Anything, (*uuid.UUID)(nil), int64(3), testBacklogLimit).
		Return([]models.Message{}, nil).
		Run(func(mock.Arguments) { close(subscribed) }).
		Once()

	sessions := make(chan session.Session, 1)
	sessions <- activeSession(env.userID)
	env.authority.On("Watch", mock.Anything, env.userID).Return(sessions)

	rec, done, cancel := openStream(env, "/api/v1/rooms/global/events?since=3")

	<-subscribed
	sessions <- session.Session{Identity: models.Identity{ID: env.userID}, State: session.Pending}

	select {
	case <-done:
		t.Fatal("stream ended on a pending session")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	waitDone(t, done)
	assert.NotContains(t, rec.body(), "revoked")
}

func TestStreamHandler_UnknownRoom(t *testing.T) {
	env := newTestEnv(t)
	roomID := uuid.New()
	env.rooms.On("Get", mock.Anything, roomID).Return(nil, apperr.ErrRoomMissing)

	rec := env.as(session.Active).GET("/api/v1/rooms/" + roomID.String() + "/events")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env.authority.AssertNotCalled(t, "Watch", mock.Anything, mock.Anything)
}

func TestStreamHandler_BadSince(t *testing.T) {
	env := newTestEnv(t)

	rec := env.as(session.Active).GET("/api/v1/rooms/global/events?since=x")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
