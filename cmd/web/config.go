package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yanizio/meetgate/internal/config"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"root", cfg.Paths.Root},
		{"http.listen_addr", cfg.HTTP.ListenAddr},
		{"http.force_https", fmt.Sprint(cfg.HTTP.ForceHTTPS)},
		{"firebase.api_key", mask(cfg.Firebase.APIKey)},
		{"firebase.request_uri", cfg.Firebase.RequestURI},
		{"firebase.retry_max", fmt.Sprint(cfg.Firebase.RetryMax)},
		{"firebase.timeout", cfg.Firebase.Timeout.String()},
		{"google.client_id", cfg.Google.ClientID},
		{"google.client_secret", mask(cfg.Google.ClientSecret)},
		{"google.redirect_url", cfg.Google.RedirectURL},
		{"session.cookie_key", mask(cfg.Session.CookieKey)},
		{"session.csrf_key", mask(cfg.Session.CSRFKey)},
		{"guard.settle_timeout", cfg.Guard.SettleTimeout.String()},
		{"guard.poll_after", cfg.Guard.PollAfter.String()},
		{"log.dir", cfg.LogDir()},
		{"geoip.db_path", cfg.GeoIP.DBPath},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

// mask keeps the first four characters of a secret.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****"
	}
}
