package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/config"
	"github.com/yanizio/meetgate/internal/identity"
	"github.com/yanizio/meetgate/internal/identity/firebase"
)

// probePasswordEnv keeps the password out of shell history.
const probePasswordEnv = "MEETGATE_PROBE_PASSWORD"

func probeCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Sign in with email and password, then resolve the identity stream once",
		Long: "probe checks provider connectivity and credentials end to end.  The\n" +
			"password is read from " + probePasswordEnv + ".",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw := os.Getenv(probePasswordEnv)
			if email == "" || pw == "" {
				return errors.New("--email and " + probePasswordEnv + " are required")
			}
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			cli := firebase.New(firebase.Config{
				APIKey:   cfg.Firebase.APIKey,
				RetryMax: cfg.Firebase.RetryMax,
				Timeout:  cfg.Firebase.Timeout,
			}, zap.S())
			return probe(cmd.Context(), cmd.OutOrStdout(), cli, email, pw)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// probe signs in, then subscribes as a fresh page session would and
// prints the first identity it sees.
func probe(ctx context.Context, out io.Writer, p identity.Provider, email, password string) error {
	ctx = firebase.WithPersistence(ctx, &firebase.Memory{})

	id, err := p.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fmt.Fprintf(out, "signed in\tuid=%s email=%s expires=%s\n", id.UID, id.Email, id.ExpiresAt.Format(time.RFC3339))

	sub, err := p.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	select {
	case ev := <-sub.Events():
		if ev.Identity == nil {
			return errors.New("identity stream reported no user")
		}
		fmt.Fprintf(out, "stream\tuid=%s email=%s\n", ev.Identity.UID, ev.Identity.Email)
	case <-time.After(10 * time.Second):
		return errors.New("identity stream timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
