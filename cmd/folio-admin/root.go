package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"folio/pkg/client"
)

type globalFlags struct {
	baseURL         string
	function        string
	secret          string
	signatureSecret string
	token           string
	timeout         time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "folio-admin",
		Short:         "Administer a folio deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.baseURL, "url", envOr("FOLIO_URL", "http://localhost:8080"), "Server base URL")
	flags.StringVar(&g.function, "function", "portfolio", "Function route group")
	flags.StringVar(&g.secret, "secret", os.Getenv("INTERNAL_API_SECRET"), "Internal API secret for writes")
	flags.StringVar(&g.signatureSecret, "signature-secret", os.Getenv("EDGE_FUNCTION_SECRET"), "Sign writes with this HMAC secret")
	flags.StringVar(&g.token, "token", os.Getenv("FOLIO_TOKEN"), "Admin session token")
	flags.DurationVar(&g.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newHashPasswordCmd(),
		newMigrateCmd(),
		newLoginCmd(g),
		newProjectsCmd(g),
		newServicesCmd(g),
	)
	return root
}

func (g *globalFlags) client() *client.Client {
	return client.New(client.Options{
		BaseURL:         g.baseURL,
		Function:        g.function,
		Token:           g.token,
		SignatureSecret: g.signatureSecret,
		Secret:          g.secret,
		Timeout:         g.timeout,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
