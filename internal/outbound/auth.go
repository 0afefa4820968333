package outbound

import (
	"net/http"
	"strings"

	"mcpmux/internal/domain"
	"mcpmux/pkg/oauth"
)

// AuthProvider resolves a bearer token for a resource, or reports that
// OAuth authorization must happen first; FinishAuth completes the
// authorization-code exchange.
type AuthProvider interface {
	GetToken(resource string) (token string, authURL string, needsAuth bool, err error)
	FinishAuth(resource, code string) (token string, err error)
}

// checkForAuthRequiredError inspects a connect error for a 401/Unauthorized
// signature and, when found, returns the domain.KindOAuthRequired sentinel
// carrying the best-effort authorization URL, parsed from the actual
// WWW-Authenticate challenge via oauth.ParseWWWAuthenticate rather than
// matching only on the word "Bearer".
func checkForAuthRequiredError(serverURL string, err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "401") && !strings.Contains(errStr, http.StatusText(http.StatusUnauthorized)) {
		return nil
	}

	authURL := serverURL
	if idx := strings.Index(errStr, "Bearer"); idx >= 0 {
		headerPart := errStr[idx:]
		if end := strings.IndexByte(headerPart, '\n'); end > 0 {
			headerPart = headerPart[:end]
		}
		if challenge, perr := oauth.ParseWWWAuthenticate(headerPart); perr == nil && challenge != nil {
			if challenge.ResourceMetadataURL != "" {
				authURL = challenge.ResourceMetadataURL
			} else if challenge.Issuer != "" {
				authURL = challenge.Issuer
			}
		}
	}

	return domain.NewError(domain.KindOAuthRequired, "server requires authorization").
		WithServer(serverURL).
		WithAuthURL(authURL)
}
