package models

import "time"

// Identity is the principal issued by the auth provider. It is mirrored
// read-only by the session store.
type Identity struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

// Credential is the provider-owned identity row including its password hash.
type Credential struct {
	Identity
	PasswordHash []byte
	CreatedAt    time.Time
}

// AuthSession is what the provider hands to a signed-in client.
type AuthSession struct {
	SessionID    string    `json:"session_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Session is the provider's persisted refresh session.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastSeenAt       time.Time
	ExpiresAt        time.Time
}

type AuthEventType string

const (
	AuthEventInitialSession AuthEventType = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventType = "SIGNED_IN"
	AuthEventSignedOut      AuthEventType = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is a provider-wide notification about a user's auth state.
type AuthEvent struct {
	ID         string        `json:"id"`
	Type       AuthEventType `json:"type"`
	UserID     string        `json:"userId"`
	SessionID  string        `json:"sessionId,omitempty"`
	Origin     string        `json:"origin,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

type AuditEntry struct {
	ID         string
	EventType  string
	UserID     string
	SessionID  string
	OccurredAt time.Time
	RecordedAt time.Time
}
