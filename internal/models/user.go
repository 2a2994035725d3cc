package models

import "time"

// User is a finance-staff account
type User struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email" example:"staff@avelio.app"`
	Phone       string     `json:"phone,omitempty"`
	EmployeeID  string     `json:"employee_id,omitempty"`
	StationCode string     `json:"station_code" example:"JUB"`
	Role        string     `json:"role" example:"agent"`
	IsActive    bool       `json:"-"`
	LastLogin   *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"-"`
	UpdatedAt   time.Time  `json:"-"`
}

// AuthUser is the identity snapshot carried in the request context after
// token validation. Receipt creation copies StationCode and Name onto the
// receipt row so later profile edits never rewrite history.
type AuthUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	StationCode string `json:"station_code"`
}
