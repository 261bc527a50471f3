package models

import "time"

// User is an account that can submit reports. Staff users may triage every
// report through the admin endpoints.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReporterCount is one row of the top reporters leaderboard.
type ReporterCount struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Count    int    `json:"report_count"`
}
