package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelworks/modelsync/internal/auth"
	"github.com/modelworks/modelsync/internal/config"
	"github.com/modelworks/modelsync/internal/core/collab"
	"github.com/modelworks/modelsync/internal/core/connection"
	"github.com/modelworks/modelsync/internal/core/mode"
	"github.com/modelworks/modelsync/internal/core/observability/log"
	"github.com/modelworks/modelsync/internal/core/syncengine"
	"github.com/modelworks/modelsync/internal/remote"
	"github.com/modelworks/modelsync/internal/storage/sqlite"
	"github.com/modelworks/modelsync/pkg/clock"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	workspaceID := flag.String("workspace", "", "workspace to join")
	login := flag.Bool("login", false, "run the browser authentication flow before starting")
	flag.Parse()

	if *workspaceID == "" {
		fmt.Fprintln(os.Stderr, "usage: modelsync -workspace <id> [-config <path>] [-login]")
		os.Exit(2)
	}

	if err := run(*configPath, *workspaceID, *login); err != nil {
		fmt.Fprintln(os.Stderr, "modelsync:", err)
		os.Exit(1)
	}
}

func run(configPath, workspaceID string, login bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := log.New(log.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.System()

	store, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	authClient := auth.NewClient(auth.Config{
		BaseURL:      cfg.Auth.BaseURL,
		PollInterval: cfg.Auth.PollInterval.Std(),
		PollTimeout:  cfg.Auth.PollTimeout.Std(),
	}, nil, clk, logger)

	if login {
		session, err := authClient.Initiate(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Open the following URL in your browser to sign in:")
		fmt.Println("  " + session.AuthURL)
		if _, err := authClient.Complete(ctx, session); err != nil {
			return err
		}
	}

	remoteClient := remote.NewClient(nil, cfg.Sync.RemoteURL, authClient.Token, logger)
	engine := syncengine.New(remoteClient, store, clk, logger)

	conn := connection.New(connection.Config{
		BaseURL:              cfg.Collaboration.Endpoint,
		BaseDelay:            cfg.Collaboration.BaseDelay.Std(),
		MaxDelay:             cfg.Collaboration.MaxDelay.Std(),
		MaxReconnectAttempts: cfg.Collaboration.MaxReconnectAttempts,
	}, connection.NewWebSocketDialer(), clk, logger)

	controller := mode.NewController(mode.Config{
		ProbeInterval: cfg.Sync.ProbeInterval.Std(),
		ProbeTimeout:  cfg.Sync.ProbeTimeout.Std(),
	}, store, remoteClient, authClient, conn, clk, logger)
	defer controller.Close()

	router := collab.NewRouter(workspaceID, conn, clk, logger)
	presence := collab.NewPresenceTracker(clk)
	conflicts := collab.NewConflictLog(clk)
	service := collab.NewService(router, presence, conflicts, func(u collab.DomainUpdate) {
		logger.Info("remote update applied",
			log.String("element_type", string(u.ElementType)),
			log.String("element_id", u.ElementID),
			log.String("user_id", u.UserID))
	}, logger)
	defer service.Close()

	// Pull the remote snapshot whenever the channel comes back up, so
	// changes made elsewhere while this client was offline are not lost.
	conn.OnStateChange(func(s connection.State) {
		logger.Info("connection state changed", log.String("state", s.String()))
		if s != connection.StateOpen {
			return
		}
		snap, err := engine.LoadFromDatabase(ctx, workspaceID)
		if err != nil {
			logger.Warn("failed to load remote workspace after reconnect", log.Error(err))
			return
		}
		if snap != nil {
			logger.Info("remote workspace loaded",
				log.String("workspace_id", snap.WorkspaceID),
				log.Int("resources", len(snap.Resources)))
		}
	})
	conn.OnError(func(err error) {
		logger.Warn("connection error", log.Error(err))
	})

	controller.Start(ctx)

	if controller.IsOnline() && authClient.IsAuthenticated() {
		if err := conn.Open(ctx, workspaceID, authClient.Token()); err != nil {
			logger.Warn("failed to open collaboration channel", log.Error(err))
		}
	} else {
		logger.Info("starting offline",
			log.Bool("online", controller.IsOnline()),
			log.Bool("authenticated", authClient.IsAuthenticated()))
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	logger.Info("shutting down")
	conn.Disconnect()
	cancel()
	return nil
}
