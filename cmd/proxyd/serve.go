package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcpmux/internal/config"
	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
	"mcpmux/internal/instructions"
	"mcpmux/internal/loadstate"
	"mcpmux/internal/loader"
	"mcpmux/internal/outbound"
	"mcpmux/internal/preset"
	"mcpmux/internal/reload"
	"mcpmux/internal/session"
	"mcpmux/pkg/logging"
	"mcpmux/pkg/oauth"
)

var (
	serveConfigPath  string
	serveTransport   string
	serveAddr        string
	serveDebug       bool
	serveTags        []string
	serveTagExpr     string
	servePreset      string
	servePaginate    bool
	serveOAuthClient string
	serveOAuthScope  string
	serveOAuthRedir  string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy and block on its inbound MCP transport",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&serveConfigPath, "config", "proxyd.yaml", "Path to the aggregate configuration document")
	cmd.Flags().StringVar(&serveTransport, "transport", "stdio", "Inbound transport: stdio or http")
	cmd.Flags().StringVar(&serveAddr, "addr", ":8585", "Listen address when --transport=http")
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	cmd.Flags().StringSliceVar(&serveTags, "tags", nil, "Default session tag filter (OR semantics)")
	cmd.Flags().StringVar(&serveTagExpr, "tag-expression", "", "Default session advanced tag expression")
	cmd.Flags().StringVar(&servePreset, "preset", "", "Default session preset name")
	cmd.Flags().BoolVar(&servePaginate, "paginate", false, "Paginate tools/resources/prompts one server per page")
	cmd.Flags().StringVar(&serveOAuthClient, "oauth-client-id", "", "OAuth client_id for outbound servers requiring authorization; empty disables PKCE support")
	cmd.Flags().StringVar(&serveOAuthScope, "oauth-scope", "", "OAuth scope requested during authorization")
	cmd.Flags().StringVar(&serveOAuthRedir, "oauth-redirect-uri", "http://localhost:8585/oauth/callback", "OAuth redirect_uri registered with outbound identity providers")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tracker := loadstate.New()
	conn := outbound.New()

	if serveOAuthClient != "" {
		tokenDir, derr := oauth.DefaultTokenDir()
		if derr != nil {
			return fmt.Errorf("resolve oauth token directory: %w", derr)
		}
		store, serr := outbound.NewFileTokenStore(tokenDir)
		if serr != nil {
			return fmt.Errorf("init oauth token store: %w", serr)
		}
		oauthClient := oauth.NewClient(oauth.WithLogger(logging.Logr()))
		authProvider := outbound.NewPKCEAuthProvider(oauthClient, store, serveOAuthClient, serveOAuthRedir, serveOAuthScope)
		for name, desc := range cfg.OutboundServers {
			if desc.URL != "" {
				conn.SetAuthProvider(name, authProvider)
			}
		}
	}

	loaderMgr := loader.New(loader.Config{
		ServerTimeout:           time.Duration(cfg.Loader.ServerTimeoutMs) * time.Millisecond,
		MaxRetries:              cfg.Loader.MaxRetries,
		RetryDelay:              time.Duration(cfg.Loader.RetryDelayMs) * time.Millisecond,
		MaxConcurrentLoads:      cfg.Loader.MaxConcurrentLoads,
		ContinueOnFailure:       cfg.Loader.ContinueOnFailure,
		EnableBackgroundRetry:   cfg.Loader.EnableBackgroundRetry,
		BackgroundRetryInterval: time.Duration(cfg.Loader.BackgroundRetryIntervalMs) * time.Millisecond,
	}, tracker, conn)

	if err := loaderMgr.LoadAll(ctx, cfg.OutboundServers); err != nil {
		logging.Warn("proxyd", "initial load: %v", err)
	}

	instrStore := instructions.New()
	refreshInstructions(conn, tracker, cfg.OutboundServers, instrStore)

	renderer := instructions.NewRenderer(cfg.Templates.SizeLimitBytes)

	currentServers := cfg.OutboundServers
	serversFunc := func() []domain.ServerDescriptor {
		out := make([]domain.ServerDescriptor, 0, len(currentServers))
		for _, d := range currentServers {
			out = append(out, d)
		}
		return out
	}
	filterServersFunc := func() []filtering.Server {
		descs := serversFunc()
		out := make([]filtering.Server, 0, len(descs))
		for _, d := range descs {
			out = append(out, filtering.Server{Name: d.Name, Tags: d.Tags, Disabled: d.Disabled})
		}
		return out
	}

	presetStore := preset.New(cfg.Presets.Directory, filterServersFunc)
	if err := presetStore.Load(); err != nil {
		logging.Warn("proxyd", "loading presets from %q: %v", cfg.Presets.Directory, err)
	}
	go func() {
		if err := presetStore.Watch(ctx, time.Second); err != nil && ctx.Err() == nil {
			logging.Warn("proxyd", "preset watch: %v", err)
		}
	}()

	resolvePreset := func(name string) (*domain.TagQuery, bool) {
		p, ok := presetStore.Get(name)
		if !ok {
			return nil, false
		}
		return p.Query, true
	}

	dispatcher := reload.New(loaderMgr, conn, tracker)
	defaultOpts := sessionOptions()

	srv := newInboundServer(inboundDeps{
		servers:       serversFunc,
		tracker:       tracker,
		conn:          conn,
		resolvePreset: resolvePreset,
		instrStore:    instrStore,
		renderer:      renderer,
		toolPattern:   cfg.ToolNamePattern,
		defaultOpts:   defaultOpts,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reloadConfig(ctx, serveConfigPath, &currentServers, dispatcher)
				continue
			}
			logging.Info("proxyd", "received %s, shutting down", sig)
			cancel()
			return
		}
	}()

	defer loaderMgr.Shutdown()

	switch serveTransport {
	case "stdio":
		return srv.ServeStdio(ctx)
	case "http":
		return srv.ServeHTTP(ctx, serveAddr)
	default:
		return fmt.Errorf("unknown --transport %q (want stdio or http)", serveTransport)
	}
}

func sessionOptions() session.Options {
	mode := domain.FilterModeNone
	if len(serveTags) > 0 {
		mode = domain.FilterModeSimpleOr
	}
	if serveTagExpr != "" {
		mode = domain.FilterModeAdvanced
	}
	if servePreset != "" {
		mode = domain.FilterModePreset
	}
	return session.Options{
		Tags:             serveTags,
		TagExpression:    serveTagExpr,
		TagFilterMode:    mode,
		PresetName:       servePreset,
		EnablePagination: servePaginate,
	}
}

func refreshInstructions(conn *outbound.Manager, tracker *loadstate.Tracker, servers map[string]domain.ServerDescriptor, store *instructions.Store) {
	for name := range servers {
		info, ok := tracker.Get(name)
		if !ok || info.State != domain.StateReady {
			continue
		}
		client, ok := conn.GetClient(name)
		if !ok {
			continue
		}
		if instr := client.Instructions(); instr != "" {
			store.Set(name, instr)
		}
	}
}

func reloadConfig(ctx context.Context, path string, currentServers *map[string]domain.ServerDescriptor, dispatcher *reload.Dispatcher) {
	cfg, err := config.Load(path)
	if err != nil {
		logging.Warn("proxyd", "reload config: %v", err)
		return
	}
	diff := reload.Compute(*currentServers, cfg.OutboundServers)
	if len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.Changed) == 0 {
		return
	}
	if err := dispatcher.Apply(ctx, diff); err != nil {
		logging.Warn("proxyd", "apply config diff: %v", err)
		return
	}
	*currentServers = cfg.OutboundServers
	logging.Info("proxyd", "config reloaded: %d added, %d removed, %d changed", len(diff.Added), len(diff.Removed), len(diff.Changed))
}
