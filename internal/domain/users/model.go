package users

import "time"

// User is a Telegram user linked to a lab API account. APIToken, Roles and
// Customers form the durable session record the identity resolver reads.
type User struct {
	ID              int64
	TelegramID      int64
	Username        string
	FirstName       string
	LastName        string
	APIUserID       int64
	APIToken        string
	DisplayName     string
	Roles           []string
	Customers       []Customer
	SelectedLabID   int64
	DefaultEntityID int64
	FirstTimeSetup  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Customer struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

type Telegram struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// LoggedIn reports whether the user has linked an API account.
func (u *User) LoggedIn() bool {
	return u != nil && u.APIToken != "" && u.APIUserID != 0
}
