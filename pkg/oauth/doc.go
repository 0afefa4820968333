// Package oauth provides the OAuth 2.1 types and utilities the proxy uses
// to authenticate against outbound MCP servers that require authorization.
//
// The Client Manager (internal/outbound) wraps this package with its own
// file-backed token store and PKCE authorization flow; this package itself
// holds no storage or UI concerns, only the RFC-grounded primitives.
//
// # Core Components
//
//   - Token: OAuth token representation with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - AuthChallenge: parsed WWW-Authenticate header information
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Client: OAuth client for metadata discovery and token operations
//
// # Usage
//
//	import "mcpmux/pkg/oauth"
//
//	challenge, err := oauth.ParseWWWAuthenticate(header)
//	pkce, err := oauth.GeneratePKCE()
//	client := oauth.NewClient(oauth.WithLogger(logging.Logr()))
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
package oauth
