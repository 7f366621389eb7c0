package models

import "time"

// ReminderStatus is the recipient-controlled state of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusSnoozed ReminderStatus = "snoozed"
	ReminderStatusDone    ReminderStatus = "done"
)

// Valid reports whether s is one of the known statuses.
func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderStatusPending, ReminderStatusSnoozed, ReminderStatusDone:
		return true
	}
	return false
}

// Reminder is a scheduled message from one user to another.
// There is no scheduler: a reminder is due once ScheduledAt is reached.
type Reminder struct {
	BaseModel
	SenderID    uint           `gorm:"not null;index" json:"senderId"`
	RecipientID uint           `gorm:"not null;index:idx_reminder_recipient_schedule" json:"recipientId"`
	Subject     string         `gorm:"type:varchar(120);not null" json:"subject"`
	Body        string         `gorm:"type:text;not null" json:"body"`
	ScheduledAt time.Time      `gorm:"not null;index:idx_reminder_recipient_schedule" json:"scheduledAt"`
	Status      ReminderStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Read        bool           `gorm:"column:is_read;not null;default:false" json:"read"`
}

// TableName specifies the table name for Reminder.
func (Reminder) TableName() string {
	return "reminders"
}

// IsDue reports whether the reminder should be shown as "now": it is scheduled in the past
// or within window of now.
func (r *Reminder) IsDue(now time.Time, window time.Duration) bool {
	return !r.ScheduledAt.After(now.Add(window))
}

// ReminderWithSender is a reminder enriched with the sender's public info for listings.
type ReminderWithSender struct {
	Reminder
	Sender *UserBasicInfo `json:"sender"`
	Due    bool           `json:"due"`
}
