package gdrive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
)

func splitPath(p string) []string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" {
		return nil
	}

	return strings.Split(p, "/")
}

func escapeName(name string) string {
	return strings.ReplaceAll(name, "'", "\\'")
}

func ensureFolderPath(ctx context.Context, svc *drive.Service, folderPath string) (string, error) {
	parentID := "root"
	for _, part := range splitPath(folderPath) {
		id, err := findFolder(ctx, svc, part, parentID)
		if err != nil {
			return "", err
		}

		if id == "" {
			id, err = createFolder(ctx, svc, part, parentID)
			if err != nil {
				return "", err
			}
		}

		parentID = id
	}

	return parentID, nil
}

func findFolder(ctx context.Context, svc *drive.Service, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		escapeName(name), parentID, folderMimeType)

	list, err := svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}

func createFolder(ctx context.Context, svc *drive.Service, name, parentID string) (string, error) {
	f := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}

	created, err := svc.Files.Create(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}

	return created.Id, nil
}
