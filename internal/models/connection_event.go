package models

import "time"

// ConnectionEventType names a lifecycle transition of a Connection.
type ConnectionEventType string

const (
	ConnectionEventRequested ConnectionEventType = "requested"
	ConnectionEventAccepted  ConnectionEventType = "accepted"
	ConnectionEventRejected  ConnectionEventType = "rejected"
	ConnectionEventCancelled ConnectionEventType = "cancelled"
	ConnectionEventRelabeled ConnectionEventType = "relabeled"
	ConnectionEventRemoved   ConnectionEventType = "removed"
)

// ConnectionEvent is an append-only audit record of one transition.
// Connections themselves are hard-deleted, so this table is the only history of a pair.
type ConnectionEvent struct {
	ID           uint                `gorm:"primarykey" json:"id"`
	EventID      string              `gorm:"type:varchar(36);uniqueIndex;not null" json:"eventId"` // producer-assigned, makes consumption idempotent
	ConnectionID uint                `gorm:"not null;index" json:"connectionId"`
	Type         ConnectionEventType `gorm:"type:varchar(20);not null" json:"type"`
	ActorID      uint                `gorm:"not null" json:"actorId"`
	RequesterID  uint                `gorm:"not null;index" json:"requesterId"`
	RecipientID  uint                `gorm:"not null;index" json:"recipientId"`
	Label        string              `gorm:"type:varchar(100)" json:"label,omitempty"`
	OccurredAt   time.Time           `gorm:"not null;index" json:"occurredAt"`
	CreatedAt    time.Time           `json:"-"`
}

// TableName specifies the table name for ConnectionEvent.
func (ConnectionEvent) TableName() string {
	return "connection_events"
}

// NewConnectionEvent builds an event snapshot of conn as changed by actorID.
func NewConnectionEvent(eventID string, eventType ConnectionEventType, conn *Connection, actorID uint, at time.Time) *ConnectionEvent {
	return &ConnectionEvent{
		EventID:      eventID,
		ConnectionID: conn.ID,
		Type:         eventType,
		ActorID:      actorID,
		RequesterID:  conn.RequesterID,
		RecipientID:  conn.RecipientID,
		Label:        conn.Label,
		OccurredAt:   at,
	}
}
