package main

import (
	"testing"

	"mcpmux/internal/domain"
)

func TestNewServeCmdFlags(t *testing.T) {
	cmd := newServeCmd()

	if cmd.Use != "serve" {
		t.Errorf("Expected Use to be 'serve', got %s", cmd.Use)
	}
	for _, name := range []string{"config", "transport", "addr", "debug", "tags", "tag-expression", "preset", "paginate", "oauth-client-id", "oauth-scope", "oauth-redirect-uri"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected serve command to register a --%s flag", name)
		}
	}
}

func TestSessionOptionsDerivesFilterMode(t *testing.T) {
	origTags, origExpr, origPreset := serveTags, serveTagExpr, servePreset
	defer func() { serveTags, serveTagExpr, servePreset = origTags, origExpr, origPreset }()

	serveTags, serveTagExpr, servePreset = nil, "", ""
	if got := sessionOptions().TagFilterMode; got != domain.FilterModeNone {
		t.Errorf("expected FilterModeNone with no flags set, got %v", got)
	}

	serveTags, serveTagExpr, servePreset = []string{"a"}, "", ""
	if got := sessionOptions().TagFilterMode; got != domain.FilterModeSimpleOr {
		t.Errorf("expected FilterModeSimpleOr with --tags set, got %v", got)
	}

	serveTags, serveTagExpr, servePreset = nil, "tag:a", ""
	if got := sessionOptions().TagFilterMode; got != domain.FilterModeAdvanced {
		t.Errorf("expected FilterModeAdvanced with --tag-expression set, got %v", got)
	}

	serveTags, serveTagExpr, servePreset = nil, "", "dev"
	if got := sessionOptions().TagFilterMode; got != domain.FilterModePreset {
		t.Errorf("expected FilterModePreset with --preset set, got %v", got)
	}
}
