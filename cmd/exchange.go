package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"fbpublish/internal/facebook"
	"fbpublish/pkg/config"
	"fbpublish/pkg/httputil"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	exchangeAppID     string
	exchangeAppSecret string
	exchangeToken     string
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange a short-lived user token for a long-lived one",
	Long: `Exchange a short-lived Facebook user token for a long-lived one.
The app ID and secret default to FACEBOOK_APP_ID and
FACEBOOK_APP_SECRET from the environment.`,
	RunE: runExchange,
}

func init() {
	exchangeCmd.Flags().StringVar(&exchangeAppID, "app-id", "", "Facebook app ID")
	exchangeCmd.Flags().StringVar(&exchangeAppSecret, "app-secret", "", "Facebook app secret")
	exchangeCmd.Flags().StringVar(&exchangeToken, "short-token", "", "Short-lived user token")
	rootCmd.AddCommand(exchangeCmd)
}

func runExchange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if exchangeAppID == "" {
		exchangeAppID = cfg.AppID
	}
	if exchangeAppSecret == "" {
		exchangeAppSecret = cfg.AppSecret
	}
	if exchangeAppID == "" || exchangeAppSecret == "" {
		return errors.New("app ID and app secret are required (flags or FACEBOOK_APP_ID / FACEBOOK_APP_SECRET)")
	}

	if exchangeToken == "" {
		if err := huh.NewInput().
			Title("Short-lived user token").
			EchoMode(huh.EchoModePassword).
			Value(&exchangeToken).
			Run(); err != nil {
			return err
		}
	}
	if exchangeToken == "" {
		return errors.New("short-lived token is required")
	}

	fb := facebook.NewClient(facebook.Options{
		HTTPClient:    httputil.NewRetryClient(&http.Client{}, httputil.DefaultRetryConfig()),
		GraphURL:      cfg.Facebook.GraphURL,
		GraphVideoURL: cfg.Facebook.GraphVideoURL,
		Version:       cfg.Facebook.APIVersion,
	})

	var longToken string
	err = runWithSpinner("Exchanging token", func() error {
		var exchErr error
		longToken, exchErr = fb.ExchangeToken(ctx, exchangeAppID, exchangeAppSecret, exchangeToken)
		return exchErr
	})
	if err != nil {
		fmt.Println(errorStyle.Render("✗ Exchange failed: " + err.Error()))
		return err
	}

	fmt.Println(infoStyle.Render("Long-lived token: " + longToken))
	return nil
}
