package browserauth

// AuthorizationState is the payload signed into the OAuth state parameter.
// Binding is the fingerprint of the browser binding cookie, never the cookie
// value itself.
type AuthorizationState struct {
	Nonce   string `json:"n"`
	Binding string `json:"b"`
}

// PendingAuth is the server-side record for an issued state, keyed by nonce.
// It is consumed exactly once.
type PendingAuth struct {
	Nonce   string `json:"nonce"`
	Binding string `json:"binding"`
}
