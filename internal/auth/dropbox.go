package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/oauth2"
)

const dropboxCallbackAddr = "localhost:9999"

type dropboxCredentials struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

var dropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

func loadDropboxConfig() (*oauth2.Config, error) {
	path, err := credentialsPath(ProviderDropbox)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dropbox_credentials.json not found in ~/.fetchrelay: %w", err)
	}

	var creds dropboxCredentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse dropbox credentials: %w", err)
	}

	return &oauth2.Config{
		ClientID:     creds.AppKey,
		ClientSecret: creds.AppSecret,
		Endpoint:     dropboxEndpoint,
		RedirectURL:  "http://" + dropboxCallbackAddr + "/callback",
		Scopes:       []string{"files.content.write"},
	}, nil
}

// AuthorizeDropbox prints the consent URL and waits up to two minutes for
// the browser to hit the local callback.
func AuthorizeDropbox(ctx context.Context, out io.Writer) error {
	cfg, err := loadDropboxConfig()
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("token_access_type", "offline"))

	_, _ = fmt.Fprintf(out, "Visit the URL for the auth dialog:\n\n%s\n\n", authURL)

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		select {
		case codeCh <- r.URL.Query().Get("code"):
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintln(w, "<h2>Authentication complete. You can close this window.</h2>")
	})

	srv := &http.Server{Addr: dropboxCallbackAddr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	_, _ = fmt.Fprintln(out, "Waiting for the browser sign-in...")

	select {
	case code := <-codeCh:
		token, err := cfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to exchange token: %w", err)
		}
		if err := saveToken(ProviderDropbox, token); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "Dropbox session saved")
		return nil

	case <-time.After(2 * time.Minute):
		return fmt.Errorf("authorization timed out")

	case <-ctx.Done():
		return ctx.Err()
	}
}

func NewDropboxClient(ctx context.Context) (files.Client, error) {
	cfg, err := loadDropboxConfig()
	if err != nil {
		return nil, err
	}

	_, token, err := refresh(ProviderDropbox, cfg, func(t *oauth2.Token) oauth2.TokenSource {
		return cfg.TokenSource(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	return files.New(dropbox.Config{Token: token.AccessToken}), nil
}
