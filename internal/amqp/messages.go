package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ChangeKind names what happened to an owner's data.
type ChangeKind string

const (
	EntryCreated   ChangeKind = "entry.created"
	EntryUpdated   ChangeKind = "entry.updated"
	EntryDeleted   ChangeKind = "entry.deleted"
	BudgetUpserted ChangeKind = "budget.upserted"
	BudgetDeleted  ChangeKind = "budget.deleted"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case EntryCreated, EntryUpdated, EntryDeleted, BudgetUpserted, BudgetDeleted:
		return true
	}
	return false
}

// ChangeMessage is a lightweight notification that an owner's ledger or
// budgets changed. Consumers reload what they need from the store.
type ChangeMessage struct {
	Kind      ChangeKind `json:"kind"`
	OwnerID   string     `json:"ownerId"`
	EntryID   string     `json:"entryId,omitempty"`
	Month     string     `json:"month,omitempty"`
	Category  string     `json:"category,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewChangeMessage stamps a change with the current time.
func NewChangeMessage(kind ChangeKind, ownerID string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      kind,
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown change kind %q", m.Kind)
	}
	if m.OwnerID == "" {
		return errors.New("change message without owner")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and validates a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
