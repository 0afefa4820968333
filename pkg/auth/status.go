package auth

// ServerStatus describes the authentication state for one outbound MCP
// server, as surfaced by a status resource or tool over an inbound
// session.
type ServerStatus struct {
	// ServerName is the name of the outbound MCP server.
	ServerName string `json:"server_name"`

	// Status is one of: "connected", "auth_required", "error", "disconnected", "initializing".
	Status string `json:"status"`

	// Challenge is present when Status == "auth_required".
	Challenge *ChallengeInfo `json:"challenge,omitempty"`

	// Error is present when Status == "error".
	Error string `json:"error,omitempty"`
}

// ChallengeInfo describes an outstanding OAuth challenge for a server.
type ChallengeInfo struct {
	// Issuer is the IdP URL that will issue tokens.
	Issuer string `json:"issuer"`

	// Scope is the OAuth scope requested.
	Scope string `json:"scope,omitempty"`

	// AuthorizationURL is the URL the caller must visit to complete the
	// authorization_code exchange, mirroring domain.Error's AuthURL field
	// for an OAuthRequired condition.
	AuthorizationURL string `json:"authorization_url,omitempty"`
}
