package transfer

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const (
	maxNameBytes   = 200
	maxCollisions  = 10000
	artifactPerm   = 0644
	relayTmpPrefix = "upload_"
	partSuffix     = ".part"
)

// sanitizeName turns user or URL supplied text into a single safe path
// segment. It returns "" when nothing usable remains.
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)

	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(name)

	if len(name) > maxNameBytes {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxNameBytes-len(ext)], "") + ext
	}

	return name
}

// sourceBase returns the percent-decoded last segment of the URL path.
func sourceBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	p := u.EscapedPath()
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}

	base := path.Base(p)
	if base == "/" || base == "." {
		return ""
	}

	return base
}

// artifactName picks the file name for a job's artifact: the requested name
// (borrowing the source extension when it has none), else the URL basename,
// else download_<unixms>.
func artifactName(requested, rawURL string, now time.Time) string {
	urlBase := sanitizeName(sourceBase(rawURL))

	if name := sanitizeName(requested); name != "" {
		if filepath.Ext(name) == "" {
			name += filepath.Ext(urlBase)
		}
		return name
	}

	if urlBase != "" {
		return urlBase
	}

	return fmt.Sprintf("download_%d", now.UnixMilli())
}

// withExt replaces the extension of name.
func withExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// displayStem is name without its extension.
func displayStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// createUnique creates dir/name, or name(1), name(2), ... before the
// extension when taken. O_EXCL makes concurrent jobs pick distinct names.
func createUnique(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dir: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxCollisions; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s(%d)%s", stem, i, ext)
		}

		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, artifactPerm)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create %s: %w", candidate, err)
		}
	}

	return nil, fmt.Errorf("no free name for %s", name)
}

// createRelayTemp creates upload_<unixms>_<rand><ext> in dir.
func createRelayTemp(dir, ext string, now time.Time) (*os.File, error) {
	name := fmt.Sprintf("%s%d_%06x%s", relayTmpPrefix, now.UnixMilli(), rand.IntN(1<<24), ext)
	return createUnique(dir, name)
}

// publishPart moves a finished part file to a collision-free dir/name and
// returns the new path. The part path is returned on failure.
func publishPart(dir, partPath, name string) (string, error) {
	f, err := createUnique(dir, name)
	if err != nil {
		return partPath, err
	}
	dst := f.Name()
	_ = f.Close()

	if err := os.Rename(partPath, dst); err != nil {
		_ = os.Remove(dst)
		return partPath, fmt.Errorf("failed to publish %s: %w", name, err)
	}

	return dst, nil
}
