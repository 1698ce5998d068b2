// Package auth stores and refreshes the OAuth sessions the relay sinks
// reuse across restarts.
package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fetchrelay/internal/config"
	"fetchrelay/internal/util"

	"golang.org/x/oauth2"
)

const (
	ProviderGDrive  = "gdrive"
	ProviderDropbox = "dropbox"
)

var ErrNoSession = errors.New("no saved session")

func tokenPath(provider string) (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, provider+"_token.json"), nil
}

func credentialsPath(provider string) (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, provider+"_credentials.json"), nil
}

// HasSession reports whether a token was saved for provider.
func HasSession(provider string) bool {
	path, err := tokenPath(provider)
	if err != nil {
		return false
	}

	_, err = os.Stat(path)
	return err == nil
}

func saveToken(provider string, token *oauth2.Token) error {
	path, err := tokenPath(provider)
	if err != nil {
		return err
	}

	b, err := json.Marshal(token)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(path, bytes.NewReader(b), 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

func loadToken(provider string) (*oauth2.Token, error) {
	path, err := tokenPath(provider)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: run 'fetchrelay auth %s' first", ErrNoSession, provider)
		}
		return nil, fmt.Errorf("failed to read %s token: %w", provider, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("failed to parse %s token: %w", provider, err)
	}

	return &token, nil
}

// refresh returns a token source for the saved session and persists the
// token again when the refresh produced a new access token.
func refresh(provider string, cfg *oauth2.Config, ctxToken func(*oauth2.Token) oauth2.TokenSource) (oauth2.TokenSource, *oauth2.Token, error) {
	token, err := loadToken(provider)
	if err != nil {
		return nil, nil, err
	}

	src := ctxToken(token)
	fresh, err := src.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh %s token: %w", provider, err)
	}

	if fresh.AccessToken != token.AccessToken {
		_ = saveToken(provider, fresh)
	}

	return src, fresh, nil
}
