package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/actions/content"
	"github.com/parlancehq/parlance/pkg/actions/shop"
	"github.com/parlancehq/parlance/pkg/api"
	"github.com/parlancehq/parlance/pkg/auth"
	"github.com/parlancehq/parlance/pkg/bus"
	"github.com/parlancehq/parlance/pkg/capability"
	"github.com/parlancehq/parlance/pkg/command"
	"github.com/parlancehq/parlance/pkg/config"
	"github.com/parlancehq/parlance/pkg/contextinfo"
	"github.com/parlancehq/parlance/pkg/flags"
	"github.com/parlancehq/parlance/pkg/llm"
	"github.com/parlancehq/parlance/pkg/logging"
	"github.com/parlancehq/parlance/pkg/storage"
	"github.com/parlancehq/parlance/pkg/telemetry"
)

// apiServer is the slice of api.Server the serve loop needs; tests
// substitute a fake.
type apiServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

var serveLoadConfigFn = config.Load
var serveLoadConfigPathFn = config.LoadFromPath
var serveNewServerFn = func(cfg api.Config) apiServer {
	return api.NewServer(cfg)
}

func runServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "load configuration from this file only")
	bind := fs.String("bind", "", "listen address host:port (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg *config.Config
	var err error
	if path := strings.TrimSpace(*configPath); path != "" {
		cfg, err = serveLoadConfigPathFn(path)
	} else {
		cfg, err = serveLoadConfigFn()
	}
	if err != nil {
		return withExitCode(err, 2)
	}

	if v := strings.TrimSpace(*bind); v != "" {
		cfg.Server.Bind = v
	}
	if v := strings.TrimSpace(*logLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	// Flag overrides bypass Load's validation, so check the result again.
	if err := cfg.Validate(); err != nil {
		return withExitCode(err, 2)
	}

	logger, err := logging.New(cfg.Logging.Dir)
	if err != nil {
		return fmt.Errorf("open log directory: %w", err)
	}
	defer logger.Close()
	logger.SetMinLevel(logging.Level(cfg.Logging.Level))
	logger.SetEchoStderr(cfg.Logging.EchoStderr)

	if cfg.Tracing.Enabled {
		tracer, err := telemetry.NewTracerProvider("parlance", version)
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracer.Shutdown(flushCtx)
		}()
	}

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	flagStore, err := flags.NewStore(cfg.Flags.Path, logger)
	if err != nil {
		return fmt.Errorf("load feature flags: %w", err)
	}
	watcher := flags.NewWatcher(flagStore, cfg.Flags.Debounce, cfg.Flags.PollInterval, logger)

	busCfg := bus.DefaultConfig()
	if cfg.Bus.Driver != "" {
		busCfg.Driver = cfg.Bus.Driver
	}
	if cfg.Bus.URL != "" {
		busCfg.URL = cfg.Bus.URL
	}
	eventBus, err := bus.New(busCfg)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer eventBus.Close()

	engine, provider, err := buildProcessor(cfg, logger, store, flagStore, eventBus)
	if err != nil {
		return err
	}
	if !engine.Configured() {
		fmt.Fprintf(os.Stderr, "warning: no parser service configured; commands resolve by pattern rules only\n")
	}

	srv := serveNewServerFn(api.Config{
		Bind:          cfg.Server.Bind,
		AuthToken:     cfg.Server.AuthToken,
		JWTSecret:     cfg.Server.JWTSecret,
		CORSOrigins:   cfg.Server.CORSOrigins,
		PublicMetrics: cfg.Server.PublicMetrics,
		Provider:      provider,
		Engine:        engine,
		Bus:           eventBus,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(logging.CategorySystem, "serve_start", "engine listening", map[string]any{
		"bind":    cfg.Server.Bind,
		"version": version,
	})
	fmt.Fprintf(os.Stderr, "parlance %s listening on %s\n", version, cfg.Server.Bind)

	err = serveUntilShutdown(ctx, srv, watcher, cfg.Server.ShutdownGrace)
	logger.Info(logging.CategorySystem, "serve_stop", "engine stopped", nil)
	return err
}

// buildProcessor assembles the resolution pipeline: capabilities and their
// pattern rules, context providers, the optional AI parser, the permission
// checker, and the audit trail. The returned provider string names the
// parse model for the status endpoint, empty when no parser is configured.
func buildProcessor(cfg *config.Config, logger *logging.Logger, store *storage.Store, flagStore *flags.Store, eventBus bus.Bus) (*command.Processor, string, error) {
	var parser command.Parser
	var generator content.Generator
	provider := ""
	if cfg.ParserConfigured() {
		client := llm.NewClient(llm.Options{
			APIKey:            cfg.Parser.APIKey,
			BaseURL:           cfg.Parser.BaseURL,
			Model:             cfg.Parser.Model,
			Timeout:           cfg.Parser.Timeout,
			RequestsPerSecond: cfg.Parser.RequestsPerSecond,
			Burst:             cfg.Parser.Burst,
			Logger:            logger,
		})
		parser = llm.NewParser(client, cfg.Parser.MaxContextTokens, logger)
		generator = llm.NewGenerator(client)
		provider = client.Model()
	}

	var images content.ImageGenerator
	if cfg.Images.Enabled {
		images = llm.NewImageClient(llm.ImageOptions{
			APIKey:  cfg.Images.APIKey,
			BaseURL: cfg.Images.BaseURL,
			Model:   cfg.Images.Model,
			Size:    cfg.Images.Size,
			Timeout: cfg.Images.Timeout,
		})
	}

	caps := capability.NewRegistry(action.NewRegistry(), logger)
	if generator != nil {
		contentCap := content.Capability(content.Config{
			Store:     store,
			Generator: generator,
			Images:    images,
			Logger:    logger,
		}, flagStore.Predicate(content.FlagName))
		if err := caps.Register(contentCap); err != nil {
			return nil, "", fmt.Errorf("register content capability: %w", err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "warning: no generation service configured; content capability disabled\n")
	}

	shopCap := shop.Capability(shop.Config{
		Store:  store,
		Logger: logger,
	}, flagStore.Predicate(shop.FlagName))
	if err := caps.Register(shopCap); err != nil {
		return nil, "", fmt.Errorf("register shop capability: %w", err)
	}

	ctxInfo := contextinfo.NewRegistry(logger)
	for _, p := range []contextinfo.Provider{contextinfo.TimeProvider{}, contextinfo.RuntimeProvider{}} {
		if err := ctxInfo.Register(p); err != nil {
			return nil, "", fmt.Errorf("register context provider: %w", err)
		}
	}

	// Registration order is resolution order for the pattern stage.
	rules := append(content.Rules(), shop.Rules()...)

	engine, err := command.NewProcessor(command.Config{
		Capabilities: caps,
		Context:      ctxInfo,
		Rules:        rules,
		Parser:       parser,
		Permissions:  auth.NewRoleChecker(cfg.Permissions.Grants),
		Audit:        storage.NewCommandLog(store),
		Logger:       logger,
		Bus:          eventBus,
		ParseTimeout: cfg.Parser.Timeout,
	})
	if err != nil {
		return nil, "", err
	}
	return engine, provider, nil
}

// serveUntilShutdown runs the server and the flag watcher until ctx is
// cancelled or the server stops on its own, then drains connections with
// grace as the budget.
func serveUntilShutdown(ctx context.Context, srv apiServer, watcher *flags.Watcher, grace time.Duration) error {
	if grace <= 0 {
		grace = config.DefaultShutdownGrace
	}

	ctx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A server that stops on its own must also stop the watcher and
		// release the shutdown goroutine.
		defer stopServing()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
