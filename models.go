package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Lifecycle defaults. Durations the store and the handlers agree on.
const (
	// RecoveryTokenTTL is how long a password recovery token stays live
	RecoveryTokenTTL = time.Hour
	// VerificationTTL is how long a verification code stays live
	VerificationTTL = 24 * time.Hour
	// ResendCooldown is the minimum gap between verification sends
	ResendCooldown = 60 * time.Second
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FullName       string     `bun:"full_name,notnull" json:"full_name,omitempty"`
	Company        string     `bun:"company" json:"company,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	TokenVersion   int        `bun:"token_version,notnull,default:0" json:"token_version,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// PublicProfile is the representation of a user safe to return to clients
type PublicProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Company       string `json:"company,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Profile builds the client-facing view of the user
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:            u.ID.String(),
		Email:         u.Email,
		FullName:      u.FullName,
		Company:       u.Company,
		Phone:         u.Phone,
		EmailVerified: u.EmailValidated,
	}
}

// NormalizeEmail lower-cases and trims an e-mail so lookups are stable
// regardless of how the client typed it
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const (
	// ResetRequestedStatus is the requested status
	ResetRequestedStatus = "requested"
	// ResetConsumedStatus is the consumed status
	ResetConsumedStatus = "consumed"
	// ResetExpiredStatus is the expired status
	ResetExpiredStatus = "expired"
)

// PasswordReset is the recovery-token slot. Each user holds at most one row;
// issuing a new token replaces the previous one through an upsert on user_id.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_reset,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull" json:"-"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Live reports whether the token can still be consumed
func (p *PasswordReset) Live(now time.Time) bool {
	return p.Status == ResetRequestedStatus && now.Before(p.ExpiresAt)
}

// VerificationTicket is the e-mail ownership challenge. One row per user;
// resends re-stamp the same slot. Deleted once the e-mail is confirmed.
type VerificationTicket struct {
	bun.BaseModel `bun:"table:verification_tickets,alias:vtk"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	ResendCount   int        `bun:"resend_count,notnull,default:0" json:"resend_count,omitempty"`
	LastSentAt    time.Time  `bun:"last_sent_at,notnull" json:"last_sent_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// InCooldown reports whether a resend should be throttled
func (v *VerificationTicket) InCooldown(now time.Time, cooldown time.Duration) bool {
	return now.Sub(v.LastSentAt) < cooldown
}
