package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotRecordedMessage announces a new row in the snapshot journal. It
// carries only the ID; consumers read the snapshot from the journal.
type SnapshotRecordedMessage struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSnapshotRecordedMessage(id int64) *SnapshotRecordedMessage {
	return &SnapshotRecordedMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotRecordedMessageFromJSON decodes a message body. IDs must be positive.
func SnapshotRecordedMessageFromJSON(data []byte) (*SnapshotRecordedMessage, error) {
	var msg SnapshotRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid snapshot id %d", msg.ID)
	}
	return &msg, nil
}
