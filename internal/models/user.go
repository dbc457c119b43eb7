package models

import "time"

// Plan identifiers. The order catalog sells pro_month and pro_lifetime;
// a purchased lifetime plan is stored as "lifetime" with no expiry.
const (
	PlanProMonth    = "pro_month"
	PlanProLifetime = "pro_lifetime"
	PlanLifetime    = "lifetime"
	PlanTrial       = "trial"
)

// User is one end user of the uniqueizer, keyed by their Telegram id.
// New users start with three free credits.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username,omitempty"`
	FreeRemaining int        `json:"free_remaining"`
	PlanType      string     `json:"plan_type,omitempty"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PlanActive reports whether the user has a paid plan in force at now.
func (u *User) PlanActive(now time.Time) bool {
	if u.PlanType == PlanLifetime {
		return true
	}
	if u.PlanType != "" && u.PlanExpiresAt != nil {
		return now.Before(*u.PlanExpiresAt)
	}
	return false
}

// OnTrial reports whether processing should burn a free credit. Paid
// plans never consume credits.
func (u *User) OnTrial() bool {
	return u.PlanType == "" || u.PlanType == PlanTrial
}

// CanProcess reports whether the user may submit media right now.
func (u *User) CanProcess(now time.Time) bool {
	return u.PlanActive(now) || u.FreeRemaining > 0
}
