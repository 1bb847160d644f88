package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/component"
	"github.com/yanizio/meetgate/internal/config"
	"github.com/yanizio/meetgate/internal/form"
	"github.com/yanizio/meetgate/internal/guard"
	"github.com/yanizio/meetgate/internal/identity/firebase"
	"github.com/yanizio/meetgate/internal/identity/google"
	"github.com/yanizio/meetgate/internal/logger"
	"github.com/yanizio/meetgate/internal/requestinfo"
	"github.com/yanizio/meetgate/internal/server"
)

const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth gate web server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log at debug level")
	return cmd
}

func serve(ctx context.Context, debug bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogDir(), logger.IsTTY(), debug)
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if err := requestinfo.InitGeo(cfg.GeoIP.DBPath); err != nil {
		return err
	}
	defer requestinfo.CloseGeo()

	provider, err := newProvider(ctx, cfg, log)
	if err != nil {
		return err
	}

	key, err := cfg.CookieKeyBytes()
	if err != nil {
		return err
	}
	sealer, err := firebase.NewSealer(key)
	if err != nil {
		return err
	}
	csrf, err := form.NewCSRF([]byte(cfg.Session.CSRFKey))
	if err != nil {
		return err
	}

	g := guard.New(provider, guard.Config{
		SettleTimeout: cfg.Guard.SettleTimeout,
		PollAfter:     cfg.Guard.PollAfter,
	}, log)

	h := server.NewRouter(server.Options{
		ForceHTTPS:  cfg.HTTP.ForceHTTPS,
		Persistence: firebase.CookiePersistence(sealer),
	}, component.Deps{
		Provider: provider,
		Guard:    g,
		CSRF:     csrf,
		Log:      log,
		Social:   cfg.SocialEnabled(),
	})

	return server.Run(ctx, server.New(cfg.HTTP.ListenAddr, h), shutdownGrace, log)
}

// newProvider builds the Firebase client and, when configured, attaches
// Google sign-in.
func newProvider(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*firebase.Client, error) {
	cli := firebase.New(firebase.Config{
		APIKey:     cfg.Firebase.APIKey,
		RequestURI: cfg.Firebase.RequestURI,
		RetryMax:   cfg.Firebase.RetryMax,
		Timeout:    cfg.Firebase.Timeout,
	}, log)

	if !cfg.SocialEnabled() {
		return cli, nil
	}
	g, err := google.New(ctx, google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("google sign-in: %w", err)
	}
	return cli.WithSocial(g), nil
}
