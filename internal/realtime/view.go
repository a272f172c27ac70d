package realtime

import (
	"slices"

	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Change is the difference a merge made to a View.
type Change struct {
	Added   []models.Message
	Removed []uuid.UUID
}

func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// View is a client-side window over one room: de-duplicated by id, tombstoned
// ids dropped for good, ordered by (created_at, seq) and trimmed to the most
// recent limit messages. Merging the same input twice is a no-op.
type View struct {
	limit    int
	messages []models.Message
	gone     map[uuid.UUID]struct{}
	lastSeq  int64
}

func NewView(limit int) *View {
	if limit <= 0 {
		limit = 200
	}
	return &View{
		limit: limit,
		gone:  make(map[uuid.UUID]struct{}),
	}
}

// Merge folds a backlog into the view. Tombstoned rows in the backlog remove their ids.
func (v *View) Merge(backlog []models.Message) Change {
	before := v.ids()

	next := slices.Clone(v.messages)
	for _, m := range backlog {
		v.observeSeq(m.Seq)
		if m.IsDeleted() {
			v.gone[m.ID] = struct{}{}
			continue
		}
		next = append(next, m)
	}

	return v.commit(before, next)
}

// Apply folds one live event into the view.
func (v *View) Apply(ev Event) Change {
	v.observeSeq(ev.Seq)
	if ev.Kind == KindTombstone {
		v.gone[ev.ID] = struct{}{}
		return v.commit(v.ids(), slices.Clone(v.messages))
	}
	if ev.Message == nil {
		return Change{}
	}
	return v.Merge([]models.Message{*ev.Message})
}

func (v *View) Messages() []models.Message {
	return slices.Clone(v.messages)
}

// LastSeq is the highest sequence number seen, including tombstones and trimmed messages.
func (v *View) LastSeq() int64 {
	return v.lastSeq
}

func (v *View) Len() int {
	return len(v.messages)
}

func (v *View) observeSeq(seq int64) {
	if seq > v.lastSeq {
		v.lastSeq = seq
	}
}

func (v *View) ids() map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(v.messages))
	for _, m := range v.messages {
		set[m.ID] = struct{}{}
	}
	return set
}

func (v *View) commit(before map[uuid.UUID]struct{}, next []models.Message) Change {
	next = lo.Filter(next, func(m models.Message, _ int) bool {
		_, dead := v.gone[m.ID]
		return !dead
	})
	// Later entries win so a re-read row replaces the stale copy.
	next = lo.Reverse(lo.UniqBy(lo.Reverse(next), func(m models.Message) uuid.UUID { return m.ID }))

	slices.SortStableFunc(next, compareMessages)
	if len(next) > v.limit {
		next = next[len(next)-v.limit:]
	}

	v.messages = next

	after := v.ids()
	change := Change{
		Added: lo.Filter(next, func(m models.Message, _ int) bool {
			_, seen := before[m.ID]
			return !seen
		}),
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			change.Removed = append(change.Removed, id)
		}
	}
	return change
}

func compareMessages(a, b models.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if a.Seq != b.Seq {
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	}
	return slices.Compare(a.ID[:], b.ID[:])
}
