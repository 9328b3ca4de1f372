package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/la2go/internal/asset"
	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/directory"
	"github.com/udisondev/la2go/internal/httpapi"
	"github.com/udisondev/la2go/internal/metrics"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
	"github.com/udisondev/la2go/internal/realm"
)

func main() {
	configPath := flag.String("config", "config/spadina.yaml", "path to the spadina server config")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor gives an operator running this under a process supervisor a
// way to tell "config is wrong, don't restart me" apart from "the database
// hiccuped, restart me" without parsing log text.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *configError:
		return 1
	case *databaseError:
		return 2
	default:
		return 1
	}
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

type databaseError struct{ err error }

func (e *databaseError) Error() string { return e.err.Error() }
func (e *databaseError) Unwrap() error { return e.err }

func run(ctx context.Context, configPath string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("spadina server starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return &configError{fmt.Errorf("loading config: %w", err)}
	}
	if lvl, ok := parseLogLevel(cfg.LogLevel); ok {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return &databaseError{fmt.Errorf("connecting to database: %w", err)}
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return &databaseError{fmt.Errorf("running migrations: %w", err)}
	}
	slog.Info("database migrations applied")

	store, err := asset.NewStore(cfg.Assets.Dir, capsSet(cfg.Assets.Capabilities))
	if err != nil {
		return fmt.Errorf("opening asset store at %s: %w", cfg.Assets.Dir, err)
	}
	converter := asset.NewConverter()
	realmRepo := database.Realms()

	newRealm := func(launch realm.Launch, now time.Time) (*destination.Manager, model.Realm, error) {
		ctrl, err := realm.New(launch, store, converter, realmRepo, now)
		if err != nil {
			return nil, model.Realm{}, err
		}
		ctrl.SetLocalServer(cfg.Server.Name)
		row := ctrl.Row()
		mgr, _ := destination.NewRealmManager(ctrl, store.SupportedCapabilities(), model.Local(row.Owner))
		return mgr, row, nil
	}

	dir := directory.New(realmRepo, newRealm, cfg.Server.Name)

	mc := metrics.New()
	presence := httpapi.NewPresence()
	dm := peer.NewDMQueue(database.DirectMessages())
	router := httpapi.NewFrameRouter(dir, cfg.Server.Name, dm, presence)

	server := httpapi.New(*cfg, database, dir, presence, router, dm, mc)

	slog.Info("spadina server ready", "name", cfg.Server.Name, "bind", cfg.Server.BindAddress, "port", cfg.Server.Port)
	return serve(ctx, cfg, server)
}

// serve runs the HTTP listener and its shutdown watcher as a pair of
// errgroup tasks, the same "g.Go(...) per concurrent subsystem" shape the
// teacher's own multi-server entrypoint uses for its game/AI/visibility
// loops (cmd/gameserver/main.go), scaled down to the one listener this
// process has.
func serve(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func capsSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		set[tag] = true
	}
	return set
}

func parseLogLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
