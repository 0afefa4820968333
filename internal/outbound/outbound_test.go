package outbound

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
)

func TestCheckForAuthRequiredErrorDetects401(t *testing.T) {
	err := errors.New(`request failed with status 401: Bearer realm="https://auth.example.com", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`)
	got := checkForAuthRequiredError("https://mcp.example.com", err)
	require.Error(t, got)
	assert.Equal(t, domain.KindOAuthRequired, domain.Kind(got))

	var de *domain.Error
	require.True(t, errors.As(got, &de))
	assert.Equal(t, "https://mcp.example.com/.well-known/oauth-protected-resource", de.AuthURL)
}

func TestCheckForAuthRequiredErrorIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, checkForAuthRequiredError("url", errors.New("connection refused")))
	assert.Nil(t, checkForAuthRequiredError("url", nil))
}

func TestNewClientValidatesDescriptor(t *testing.T) {
	_, err := NewClient(domain.ServerDescriptor{Transport: domain.TransportSubprocess}, nil)
	assert.Error(t, err, "subprocess transport requires a command")

	_, err = NewClient(domain.ServerDescriptor{Transport: domain.TransportStreamingHTTP}, nil)
	assert.Error(t, err, "streaming-http transport requires a url")

	_, err = NewClient(domain.ServerDescriptor{Transport: domain.TransportSSE}, nil)
	assert.Error(t, err, "sse transport requires a url")

	_, err = NewClient(domain.ServerDescriptor{Transport: "bogus"}, nil)
	assert.Error(t, err)
}

func TestManagerCloseServerOnUnknownIsNoop(t *testing.T) {
	m := New()
	assert.NoError(t, m.CloseServer("nope"))
}

func TestManagerSubscribeReceivesNoEventsUntilPublished(t *testing.T) {
	m := New()
	ch := m.Subscribe()
	select {
	case <-ch:
		t.Fatal("expected no notification yet")
	default:
	}
}
