package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

// AtomicWrite writes r to dst through a sibling temp file and a rename, so
// readers only ever observe the previous or the complete new content.
func AtomicWrite(dst string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// ResolveWithin joins rel onto root and fails with ErrInvalidPath unless the
// result is root itself or nested under it. Absolute rel is rejected.
func ResolveWithin(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root %q: %w", root, err)
	}

	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, rel)
	}

	resolved := filepath.Join(absRoot, filepath.FromSlash(rel))
	if !IsWithin(absRoot, resolved) {
		return "", fmt.Errorf("%w: %q escapes root", ErrInvalidPath, rel)
	}

	return resolved, nil
}

func IsWithin(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	return absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator))
}

// RelSlash returns path relative to root in posix form.
func RelSlash(root, path string) string {
	absRoot, err1 := filepath.Abs(root)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return filepath.Base(path)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return filepath.Base(path)
	}

	return filepath.ToSlash(rel)
}

// PublicURL escapes each segment of a root-relative posix path and appends
// it to prefix.
func PublicURL(prefix, rel string) string {
	parts := strings.Split(strings.Trim(rel, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return prefix + strings.Join(parts, "/")
}

func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
