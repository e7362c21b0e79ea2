package port

import "errors"

// Sentinel errors used across ports. Callers branch with errors.Is; the
// route layer maps ErrInvalidGrant/ErrReauthRequired to "please reauthorize"
// and ErrProviderUnavailable to "retry later".
var (
	// ErrInvalidClient means the app credentials were rejected by the
	// provider. Not retryable without a configuration fix.
	ErrInvalidClient = errors.New("invalid client credentials")

	// ErrInvalidGrant means the authorization code or refresh token is
	// expired, revoked, or mismatched. Terminal: the mall must reauthorize.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrReauthRequired means no refresh token is available for the mall.
	// Terminal: the OAuth authorization-code flow must be restarted.
	ErrReauthRequired = errors.New("reauthentication required")

	// ErrProviderUnavailable covers network failures and timeouts talking to
	// the provider. Retryable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCorruptState marks a stored record whose expiry cannot be parsed.
	// Treated as needing refresh, not as a hard failure.
	ErrCorruptState = errors.New("corrupt token state")

	// ErrAuthenticationFailed is a resource-call 401 that survived the single
	// refresh-and-retry cycle.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoRecord means no credential record exists for the mall.
	ErrNoRecord = errors.New("no shop record")

	// ErrScanUnsupported is returned by credential stores that cannot
	// enumerate records (e.g. a client-restricted connection). Bulk callers
	// treat it as "no results", never as a failure.
	ErrScanUnsupported = errors.New("store scan unsupported")
)
