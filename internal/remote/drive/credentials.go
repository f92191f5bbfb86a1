package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// TokenEnv holds a raw access token and takes precedence over the token file
	TokenEnv = "BISYNC_DRIVE_TOKEN"

	// Scope grants full Drive access
	Scope = "https://www.googleapis.com/auth/drive"

	authorizedUserType = "authorized_user"
)

var ErrNoCredentials = errors.New("drive: no credentials configured")

// tokenFile is the on-disk token. An authorized_user file carries the OAuth
// client and a refresh token and never goes stale. A file with only
// access_token is used as is until it expires.
type tokenFile struct {
	Type         string     `json:"type,omitempty"`
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenURI     string     `json:"token_uri,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// TokenSource returns the access tokens for Drive calls, read from TokenEnv
// or the token file at path. An authorized_user file yields a source that
// refreshes on expiry.
func TokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	if raw := strings.TrimSpace(os.Getenv(TokenEnv)); raw != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: raw, TokenType: "Bearer"}), nil
	}

	if path == "" {
		return nil, ErrNoCredentials
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found, run `bisync auth`", ErrNoCredentials, path)
	} else if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tf tokenFile
	if err := jsonUnmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	var expiry time.Time
	if tf.Expiry != nil {
		expiry = *tf.Expiry
	}

	switch {
	case tf.RefreshToken != "":
		if tf.Type != "" && tf.Type != authorizedUserType {
			return nil, fmt.Errorf("%w: %s has unsupported type %q", ErrNoCredentials, path, tf.Type)
		}
		if tf.ClientID == "" || tf.ClientSecret == "" {
			return nil, fmt.Errorf("%w: %s has a refresh_token but no client_id/client_secret", ErrNoCredentials, path)
		}

		endpoint := google.Endpoint
		if tf.TokenURI != "" {
			endpoint.TokenURL = tf.TokenURI
		}
		conf := &oauth2.Config{
			ClientID:     tf.ClientID,
			ClientSecret: tf.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{Scope},
		}
		tok := &oauth2.Token{RefreshToken: tf.RefreshToken, AccessToken: tf.AccessToken, Expiry: expiry}
		return conf.TokenSource(ctx, tok), nil

	case tf.AccessToken != "":
		if !expiry.IsZero() && time.Now().After(expiry) {
			slog.Warn("drive token expired and cannot be refreshed, run `bisync auth`", "path", path, "expiry", expiry)
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tf.AccessToken, TokenType: "Bearer", Expiry: expiry}), nil
	}

	return nil, fmt.Errorf("%w: %s has neither refresh_token nor access_token", ErrNoCredentials, path)
}

// SaveToken writes an authorized_user token file for conf and tok
func SaveToken(path string, conf *oauth2.Config, tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		return errors.New("drive: token has no refresh_token, revoke the app grant and retry")
	}

	tf := tokenFile{
		Type:         authorizedUserType,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		RefreshToken: tok.RefreshToken,
	}
	if conf.Endpoint.TokenURL != google.Endpoint.TokenURL {
		tf.TokenURI = conf.Endpoint.TokenURL
	}

	data, err := jsonMarshal(&tf)
	if err != nil {
		return err
	}
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("token dir: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0o600)
}

// LoadClientConfig reads an OAuth client secret file downloaded from the
// Google Cloud console ("installed" or "web" application).
func LoadClientConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: client secret file %s not found", ErrNoCredentials, path)
	} else if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}

	conf, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret %s: %w", path, err)
	}
	return conf, nil
}

// tokenError keeps network failures classifiable and maps a rejected
// refresh to remote.ErrUnauthorized
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("drive token: %w: %w", remote.ErrUnauthorized, err)
	}
	return fmt.Errorf("drive token: %w", err)
}
