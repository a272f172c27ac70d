package realtime

import (
	"errors"

	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
)

type Kind string

const (
	KindMessage   Kind = "message"
	KindTombstone Kind = "tombstone"
)

var (
	ErrLagged        = errors.New("realtime: subscriber fell behind")
	ErrClosed        = errors.New("realtime: room closed")
	ErrTransportLost = errors.New("realtime: transport lost")
)

// Notified is what travels over the transport. It carries identity only; the
// receiving room hydrates the row itself.
type Notified struct {
	Kind Kind      `json:"kind"`
	ID   uuid.UUID `json:"id"`
	Room uuid.UUID `json:"room"`
	Seq  int64     `json:"seq"`
}

func MessageNotified(m *models.Message) Notified {
	return Notified{Kind: KindMessage, ID: m.ID, Room: models.RoomKey(m.RoomID), Seq: m.Seq}
}

func TombstoneNotified(m *models.Message) Notified {
	return Notified{Kind: KindTombstone, ID: m.ID, Room: models.RoomKey(m.RoomID), Seq: m.Seq}
}

// Event is delivered to subscribers. Message is set for hydrated messages and nil for tombstones.
type Event struct {
	Kind    Kind
	ID      uuid.UUID
	Seq     int64
	Message *models.Message
}

func hydrated(m *models.Message) Event {
	if m.IsDeleted() {
		return Event{Kind: KindTombstone, ID: m.ID, Seq: m.Seq}
	}
	return Event{Kind: KindMessage, ID: m.ID, Seq: m.Seq, Message: m}
}
