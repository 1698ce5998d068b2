package auth

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

func loadGDriveConfig() (*oauth2.Config, error) {
	path, err := credentialsPath(ProviderGDrive)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gdrive_credentials.json not found in ~/.fetchrelay: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return cfg, nil
}

// AuthorizeGDrive runs the copy-paste OAuth flow: it prints the consent URL
// to out and reads the code from in.
func AuthorizeGDrive(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := loadGDriveConfig()
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	_, _ = fmt.Fprintf(out, "Visit the URL for the auth dialog:\n\n%s\n\nEnter the code here: ", authURL)

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange token: %w", err)
	}

	if err := saveToken(ProviderGDrive, token); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, "Google Drive session saved")
	return nil
}

func NewDriveService(ctx context.Context) (*drive.Service, error) {
	cfg, err := loadGDriveConfig()
	if err != nil {
		return nil, err
	}

	src, _, err := refresh(ProviderGDrive, cfg, func(t *oauth2.Token) oauth2.TokenSource {
		return cfg.TokenSource(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create gdrive service: %w", err)
	}

	return svc, nil
}
