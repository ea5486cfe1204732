package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotKind says which half of the stored state changed.
type SnapshotKind string

const (
	KindTransactions SnapshotKind = "transactions"
	KindSettings     SnapshotKind = "settings"
)

// SnapshotMessage announces that a new snapshot was saved. It carries no
// data; the consumer reads the snapshot from the source database.
type SnapshotMessage struct {
	ID        uuid.UUID    `json:"id"`
	Kind      SnapshotKind `json:"kind"`
	Revision  int64        `json:"revision"`
	Count     int          `json:"count"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewSnapshotMessage(kind SnapshotKind, revision int64, count int) *SnapshotMessage {
	return &SnapshotMessage{
		ID:        uuid.New(),
		Kind:      kind,
		Revision:  revision,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case KindTransactions, KindSettings:
	default:
		return nil, fmt.Errorf("unknown snapshot kind %q", msg.Kind)
	}
	return &msg, nil
}
