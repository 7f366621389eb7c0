package models

// User represents an account in the system.
// Username is unique and cannot change once set.
type User struct {
	BaseModel
	Username     string  `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"`
	DisplayName  string  `gorm:"type:varchar(100)" json:"displayName"`
	Email        *string `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"` // nil when not given, so the unique index ignores it
	PasswordHash string  `gorm:"type:varchar(255);not null" json:"-"`
}

// UserBasicInfo holds minimal public information about a user.
// Used wherever a counterpart is shown: circle members, requests, reminder senders.
type UserBasicInfo struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

// BasicInfo projects the user onto its public fields.
func (u *User) BasicInfo() *UserBasicInfo {
	return &UserBasicInfo{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

// TableName specifies the table name for User.
func (User) TableName() string {
	return "users"
}
