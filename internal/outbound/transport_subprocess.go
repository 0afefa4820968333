package outbound

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"

	"mcpmux/pkg/logging"
)

// subprocessClient implements Client over stdio: it launches a local
// subprocess and speaks MCP over its stdin/stdout.
type subprocessClient struct {
	baseClient
	command string
	args    []string
	env     map[string]string
}

func newSubprocessClient(command string, args []string, env map[string]string) *subprocessClient {
	return &subprocessClient{command: command, args: args, env: env}
}

func (c *subprocessClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	var envStrings []string
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	raw, err := mcpclient.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("outbound: create subprocess client for %q: %w", c.command, err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultInitTimeout)
		defer cancel()
	}

	initResult, err := raw.Initialize(initCtx, initializeRequest("mcpmux"))
	if err != nil {
		if closeErr := raw.Close(); closeErr != nil {
			logging.Debug("outbound.subprocess", "error closing failed client for %q: %v", c.command, closeErr)
		}
		return fmt.Errorf("outbound: initialize subprocess %q: %w", c.command, err)
	}

	c.raw = raw
	c.connected = true
	c.instructions = initResult.Instructions
	return nil
}
