package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind identifies which ledger a change message refers to.
type ChangeKind string

const (
	// KindGroupChanged signals that a group's expenses, settlements, or
	// membership changed and its balances must be recomputed.
	KindGroupChanged ChangeKind = "group_changed"
	// KindPersonalChanged signals that a user's private ledger changed and
	// their recurrence insights must be recomputed.
	KindPersonalChanged ChangeKind = "personal_changed"
)

// ChangeMessage is a lightweight change notification. It carries only the
// identifier; the worker fetches the current state from the database, so
// stale or duplicate deliveries are harmless.
type ChangeMessage struct {
	Kind      ChangeKind `json:"kind"`
	GroupID   string     `json:"group_id,omitempty"`
	UserUID   string     `json:"user_uid,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewGroupChanged creates a change notification for a group ledger.
func NewGroupChanged(groupID string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      KindGroupChanged,
		GroupID:   groupID,
		Timestamp: time.Now(),
	}
}

// NewPersonalChanged creates a change notification for a personal ledger.
func NewPersonalChanged(userUID string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      KindPersonalChanged,
		UserUID:   userUID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case KindGroupChanged:
		if msg.GroupID == "" {
			return nil, fmt.Errorf("group change message without group_id")
		}
	case KindPersonalChanged:
		if msg.UserUID == "" {
			return nil, fmt.Errorf("personal change message without user_uid")
		}
	default:
		return nil, fmt.Errorf("unknown change kind %q", msg.Kind)
	}
	return &msg, nil
}
