package models

import "time"

// ConnectionStatus is the lifecycle state of a Connection row.
// Rejected, cancelled and removed connections are deleted, so only these two are ever stored.
type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
)

// Connection is a directed circle request that, once accepted, is an undirected relationship.
//
// UserLowID/UserHighID hold the unordered pair in canonical order and carry a unique index,
// so at most one row can exist per pair no matter who asked first.
// Rows are hard-deleted; there is intentionally no DeletedAt column here.
type Connection struct {
	ID          uint             `gorm:"primarykey" json:"id"`
	RequesterID uint             `gorm:"not null;index" json:"requesterId"`
	RecipientID uint             `gorm:"not null;index" json:"recipientId"`
	UserLowID   uint             `gorm:"not null;uniqueIndex:idx_connection_pair" json:"-"`
	UserHighID  uint             `gorm:"not null;uniqueIndex:idx_connection_pair" json:"-"`
	Status      ConnectionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Label       string           `gorm:"type:varchar(100)" json:"label"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for Connection.
func (Connection) TableName() string {
	return "connections"
}

// PairKey returns the two user IDs in canonical (low, high) order.
func PairKey(userA, userB uint) (uint, uint) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

// EnsureCanonicalOrder fills UserLowID/UserHighID from the requester and recipient.
// Must be called before the row is inserted.
func (c *Connection) EnsureCanonicalOrder() {
	c.UserLowID, c.UserHighID = PairKey(c.RequesterID, c.RecipientID)
}

// Involves reports whether userID is one of the two parties.
func (c *Connection) Involves(userID uint) bool {
	return c.RequesterID == userID || c.RecipientID == userID
}

// Counterpart returns the other party as seen from userID.
// All direction-dependent reads go through here. It returns 0 if userID is not a party.
func (c *Connection) Counterpart(userID uint) uint {
	switch userID {
	case c.RequesterID:
		return c.RecipientID
	case c.RecipientID:
		return c.RequesterID
	default:
		return 0
	}
}

// IsPending reports whether the request is still awaiting an answer.
func (c *Connection) IsPending() bool {
	return c.Status == ConnectionStatusPending
}

// IsAccepted reports whether the connection is an established circle relationship.
func (c *Connection) IsAccepted() bool {
	return c.Status == ConnectionStatusAccepted
}
