package outbound

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"mcpmux/pkg/logging"
)

// streamingHTTPClient implements Client over StreamingHTTP. On a 401 it
// surfaces a domain.KindOAuthRequired error rather than a bare transport
// failure.
type streamingHTTPClient struct {
	baseClient
	url          string
	headers      map[string]string
	authProvider AuthProvider
}

func newStreamingHTTPClient(url string, headers map[string]string, authProvider AuthProvider) *streamingHTTPClient {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &streamingHTTPClient{url: url, headers: headers, authProvider: authProvider}
}

func (c *streamingHTTPClient) effectiveHeaders() map[string]string {
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

func (c *streamingHTTPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	headers := c.effectiveHeaders()
	var opts []transport.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}

	raw, err := mcpclient.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("outbound: create streaming-http client for %q: %w", c.url, err)
	}

	initResult, err := raw.Initialize(ctx, initializeRequest("mcpmux"))
	if err != nil {
		_ = raw.Close()
		if authErr := checkForAuthRequiredError(c.url, err); authErr != nil {
			logging.Debug("outbound.http", "authorization required for %q", c.url)
			return authErr
		}
		return fmt.Errorf("outbound: initialize streaming-http %q: %w", c.url, err)
	}

	c.raw = raw
	c.connected = true
	c.instructions = initResult.Instructions
	return nil
}
