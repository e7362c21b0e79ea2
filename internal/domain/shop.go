package domain

import "time"

// Shop record statuses.
const (
	StatusReady   = "ready"
	StatusError   = "error"
	StatusPending = "pending"
	StatusExpired = "expired"
)

// App types. OAuth apps refresh via refresh_token; private apps re-issue
// through the client_credentials grant.
const (
	AppTypeOAuth   = "oauth"
	AppTypePrivate = "private"
)

// ShopRecord is the persisted credential record for one mall. There is at
// most one record per mall_id. Records are never hard-deleted by normal
// operation; revocation clears the token fields and marks the record expired.
type ShopRecord struct {
	MallID   string `json:"mall_id"   db:"mall_id"`
	UserID   string `json:"user_id"   db:"user_id"`
	UserName string `json:"user_name" db:"user_name"`
	UserType string `json:"user_type" db:"user_type"`
	AppType  string `json:"app_type"  db:"app_type"`

	AccessToken  string    `json:"-"             db:"access_token"` // never serialized to JSON
	RefreshToken string    `json:"-"             db:"refresh_token"`
	TokenType    string    `json:"token_type"    db:"token_type"`
	ExpiresIn    int       `json:"expires_in"    db:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"    db:"expires_at"`
	Scope        string    `json:"scope"         db:"scope"`
	ClientID     string    `json:"client_id"     db:"client_id"`

	Status     string `json:"status"      db:"status"`
	TokenError string `json:"token_error,omitempty" db:"token_error"`

	InstalledAt   time.Time `json:"installed_at"    db:"installed_at"`
	UpdatedAt     time.Time `json:"updated_at"      db:"updated_at"`
	LastRefreshAt time.Time `json:"last_refresh_at" db:"last_refresh_at"`
}

// UserInfo describes the mall owner reported during app installation.
type UserInfo struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	UserType string `json:"user_type"`
}

// TokenStatistics aggregates credential health across all malls. Produced by
// the scheduler's statistics step and the admin dashboard.
type TokenStatistics struct {
	Total        int `json:"total"`
	Ready        int `json:"ready"`
	Expired      int `json:"expired"`
	Error        int `json:"error"`
	ExpiringSoon int `json:"expiring_soon"`
	NeedsRefresh int `json:"needs_refresh"`
}
