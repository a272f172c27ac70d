package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/dimitrije/teamfocus-api/tests/testutil"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageService_Integration_ConcurrentInsertsGetDistinctSeqs(t *testing.T) {
	tdb := setupTest(t)
	s := newStack(t, tdb, realtime.NewLocalTransport())
	ctx := context.Background()

	alice := s.fixtures.CreateUser(t)
	bob := s.fixtures.CreateUser(t)
	s.signIn(t, alice)
	s.signIn(t, bob)

	const perUser = 15
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs []int64
	)
	for _, author := range []uuid.UUID{alice.ID, bob.ID} {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(author uuid.UUID, i int) {
				defer wg.Done()
				msg, err := s.messages.Insert(ctx, author, nil, fmt.Sprintf("message %d", i))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seqs = append(seqs, msg.Seq)
				mu.Unlock()
			}(author, i)
		}
	}
	wg.Wait()

	require.Len(t, seqs, 2*perUser)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}

	backlog, err := s.messages.Backlog(ctx, nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, backlog, 2*perUser)
	for i := 1; i < len(backlog); i++ {
		assert.Less(t, backlog[i-1].Seq, backlog[i].Seq)
		assert.False(t, backlog[i].CreatedAt.Before(backlog[i-1].CreatedAt))
	}
}

func TestMessageService_Integration_RoomsHaveIndependentSequences(t *testing.T) {
	tdb := setupTest(t)
	s := newStack(t, tdb, realtime.NewLocalTransport())
	ctx := context.Background()

	alice := s.fixtures.CreateUser(t, testutil.WithDisplayName("Alice"))
	s.signIn(t, alice)
	room := s.fixtures.CreateRoom(t, alice)

	g1, err := s.messages.Insert(ctx, alice.ID, nil, "global one")
	require.NoError(t, err)
	r1, err := s.messages.Insert(ctx, alice.ID, &room.ID, "room one")
	require.NoError(t, err)
	r2, err := s.messages.Insert(ctx, alice.ID, &room.ID, "room two")
	require.NoError(t, err)

	assert.Equal(t, int64(1), g1.Seq)
	assert.Equal(t, int64(1), r1.Seq)
	assert.Equal(t, int64(2), r2.Seq)
	assert.Nil(t, g1.RoomID)
	assert.Equal(t, "Alice", r2.AuthorName)

	backlog, err := s.messages.Backlog(ctx, &room.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, r2.ID, backlog[0].ID)
}

func TestMessageService_Integration_TombstoneKeepsSeq(t *testing.T) {
	tdb := setupTest(t)
	s := newStack(t, tdb, realtime.NewLocalTransport())
	ctx := context.Background()

	alice := s.fixtures.CreateUser(t)
	s.signIn(t, alice)

	msgs := make([]*models.Message, 3)
	for i := range msgs {
		msg, err := s.messages.Insert(ctx, alice.ID, nil, fmt.Sprintf("m%d", i+1))
		require.NoError(t, err)
		msgs[i] = msg
	}

	deleted, err := s.messages.Delete(ctx, msgs[1].ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
	assert.Equal(t, int64(2), deleted.Seq)
	assert.Empty(t, deleted.Content)

	again, err := s.messages.Delete(ctx, msgs[1].ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, deleted.DeletedAt.Unix(), again.DeletedAt.Unix())

	next, err := s.messages.Insert(ctx, alice.ID, nil, "m4")
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.Seq)

	backlog, err := s.messages.Backlog(ctx, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, lo.Map(backlog, func(m models.Message, _ int) int64 { return m.Seq }))
	assert.True(t, backlog[1].IsDeleted())
	assert.Equal(t, 4, s.fixtures.MessageCount(t, nil))
}

func TestMessageService_Integration_DeletePermissions(t *testing.T) {
	tdb := setupTest(t)
	s := newStack(t, tdb, realtime.NewLocalTransport())
	ctx := context.Background()

	alice := s.fixtures.CreateUser(t)
	bob := s.fixtures.CreateUser(t)
	admin := s.fixtures.CreateUser(t, testutil.AsAdmin())
	s.signIn(t, alice)
	s.signIn(t, bob)
	s.signIn(t, admin)

	msg, err := s.messages.Insert(ctx, alice.ID, nil, "mine")
	require.NoError(t, err)

	_, err = s.messages.Delete(ctx, msg.ID, bob.ID)
	assert.ErrorIs(t, err, apperr.ErrNotAdmin)

	deleted, err := s.messages.Delete(ctx, msg.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())

	_, err = s.messages.Delete(ctx, uuid.New(), alice.ID)
	assert.ErrorIs(t, err, apperr.ErrMessageMissing)
}

func TestMessageService_Integration_RejectsUnknownRoomAndSignedOut(t *testing.T) {
	tdb := setupTest(t)
	s := newStack(t, tdb, realtime.NewLocalTransport())
	ctx := context.Background()

	alice := s.fixtures.CreateUser(t)
	stranger := s.fixtures.CreateUser(t)
	s.signIn(t, alice)

	missing := uuid.New()
	_, err := s.messages.Insert(ctx, alice.ID, &missing, "hello?")
	assert.ErrorIs(t, err, apperr.ErrRoomMissing)

	_, err = s.messages.Insert(ctx, stranger.ID, nil, "not signed in")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = s.messages.Insert(ctx, alice.ID, nil, "   ")
	assert.True(t, apperr.IsValidation(err))

	assert.Equal(t, 0, s.fixtures.MessageCount(t, nil))
}
