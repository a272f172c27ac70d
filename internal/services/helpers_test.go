package services

import (
	"context"
	"sync"
	"testing"

	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Require(userID uuid.UUID) error {
	return m.Called(userID).Error(0)
}

func (m *mockGate) RequireAdmin(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockGate) Recheck(userID uuid.UUID) {
	m.Called(userID)
}

func (m *mockGate) SignOut(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

// fakeRealtime runs writes inline and records what was published, and whether
// each publish happened inside a serialized write.
type fakeRealtime struct {
	mu         sync.Mutex
	published  []realtime.Notified
	inWrite    []bool
	writing    bool
	publishErr error
	serialized []uuid.UUID
}

func (f *fakeRealtime) Serialize(ctx context.Context, room *uuid.UUID, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	if room == nil {
		f.serialized = append(f.serialized, uuid.Nil)
	} else {
		f.serialized = append(f.serialized, *room)
	}
	f.writing = true
	f.mu.Unlock()

	err := fn(ctx)

	f.mu.Lock()
	f.writing = false
	f.mu.Unlock()
	return err
}

func (f *fakeRealtime) Publish(_ context.Context, n realtime.Notified) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, n)
	f.inWrite = append(f.inWrite, f.writing)
	return nil
}

func (f *fakeRealtime) publishedInWrite() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.inWrite...)
}

func (f *fakeRealtime) events() []realtime.Notified {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realtime.Notified(nil), f.published...)
}

func setupMockDB(t *testing.T) (*database.DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &database.DB{Pool: mock}, mock
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
