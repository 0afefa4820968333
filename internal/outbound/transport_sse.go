package outbound

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"mcpmux/pkg/logging"
)

// sseClient implements Client over Server-Sent Events, with the same
// 401-to-OAuthRequired translation as streamingHTTPClient.
type sseClient struct {
	baseClient
	url          string
	headers      map[string]string
	authProvider AuthProvider
}

func newSSEClient(url string, headers map[string]string, authProvider AuthProvider) *sseClient {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &sseClient{url: url, headers: headers, authProvider: authProvider}
}

func (c *sseClient) effectiveHeaders() map[string]string {
	headers := make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		headers[k] = v
	}
	if c.authProvider != nil {
		if token, _, needsAuth, err := c.authProvider.GetToken(c.url); err == nil && !needsAuth && token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}
	return headers
}

func (c *sseClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	headers := c.effectiveHeaders()
	var opts []transport.ClientOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHeaders(headers))
	}

	raw, err := mcpclient.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("outbound: create sse client for %q: %w", c.url, err)
	}
	if err := raw.Start(ctx); err != nil {
		_ = raw.Close()
		return fmt.Errorf("outbound: start sse client for %q: %w", c.url, err)
	}

	initResult, err := raw.Initialize(ctx, initializeRequest("mcpmux"))
	if err != nil {
		_ = raw.Close()
		if authErr := checkForAuthRequiredError(c.url, err); authErr != nil {
			logging.Debug("outbound.sse", "authorization required for %q", c.url)
			return authErr
		}
		return fmt.Errorf("outbound: initialize sse %q: %w", c.url, err)
	}

	c.raw = raw
	c.connected = true
	c.instructions = initResult.Instructions
	return nil
}
