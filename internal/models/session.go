package models

// Session is an identity snapshot joined with the opaque id it is stored under.
// Expiry is owned by the backing key/value store, so no timestamps are kept here.
type Session struct {
	SessionID string `json:"sessionId"`
	Identity
}
