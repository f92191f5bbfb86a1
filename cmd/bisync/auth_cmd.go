package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote/drive"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

const credentialsHelp = `Create an OAuth client for bisync:
  1. Open https://console.cloud.google.com/apis/credentials
  2. Enable the Google Drive API for your project
  3. Create an "OAuth client ID" of type "Desktop app"
  4. Download the JSON and save it as %s
`

func newAuthCmd() *cobra.Command {
	var credentialsPath, tokenPath string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize bisync to access Google Drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if credentialsPath == "" {
				credentialsPath = cfg.Drive.CredentialsFile
			}
			if tokenPath == "" {
				tokenPath = cfg.Drive.TokenFile
			}
			if credentialsPath, err = utils.ResolvePath(credentialsPath); err != nil {
				return err
			}
			if tokenPath, err = utils.ResolvePath(tokenPath); err != nil {
				return err
			}

			conf, err := drive.LoadClientConfig(credentialsPath)
			if errors.Is(err, drive.ErrNoCredentials) {
				cmd.PrintErrf(credentialsHelp, credentialsPath)
			}
			if err != nil {
				return err
			}

			tok, err := authorize(cmd.Context(), conf, func(authURL string) {
				cmd.Println("Open this URL in your browser to authorize bisync:")
				cmd.Println()
				cmd.Println("  " + authURL)
				cmd.Println()
				cmd.Println("Waiting for authorization...")
			})
			if err != nil {
				return err
			}

			if err := drive.SaveToken(tokenPath, conf, tok); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			cmd.Printf("Authorized. Token saved to %s\n", tokenPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&credentialsPath, "credentials", "", "OAuth client secret file (default drive.credentials_file)")
	cmd.Flags().StringVar(&tokenPath, "token", "", "token file to write (default drive.token_file)")
	return cmd
}

// authorize runs the loopback OAuth flow: it serves the redirect URI of
// conf, hands the consent URL to onURL and exchanges the returned code.
// A redirect URI without a port gets a free one.
func authorize(ctx context.Context, conf *oauth2.Config, onURL func(authURL string)) (*oauth2.Token, error) {
	redirect, err := url.Parse(conf.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("client secret has no usable redirect uri %q", conf.RedirectURL)
	}

	host := redirect.Hostname()
	if host == "localhost" {
		host = "127.0.0.1"
	}
	port := redirect.Port()
	if port == "" {
		port = "0"
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}
	redirect.Host = net.JoinHostPort(redirect.Hostname(), fmt.Sprint(ln.Addr().(*net.TCPAddr).Port))
	if redirect.Path == "" {
		redirect.Path = "/"
	}

	flow := *conf
	flow.RedirectURL = redirect.String()

	state := uuid.NewString()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(redirect.Path, func(c *gin.Context) {
		if c.Query("state") != state {
			c.String(http.StatusBadRequest, "Authorization failed: state mismatch. Please try again.")
			return
		}
		if code := c.Query("code"); code != "" {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<h1>Authorization successful</h1><p>You can close this tab and return to the terminal.</p>"))
			select {
			case codes <- code:
			default:
			}
			return
		}

		reason := c.DefaultQuery("error", "unknown error")
		c.String(http.StatusBadRequest, "Authorization failed: %s. Please try again.", reason)
		select {
		case errs <- fmt.Errorf("authorization denied: %s", reason):
		default:
		}
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errs <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	onURL(flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := flow.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}
