// Package tree exposes the public directory as a browsable tree and applies
// path-checked mutations to it.
package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"fetchrelay/internal/logger"
	"fetchrelay/internal/model"
	"fetchrelay/internal/util"

	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrNotAFile = errors.New("not a file")
)

type Result struct {
	Root      []*model.Node `json:"root"`
	Truncated bool          `json:"truncated"`
}

type File struct {
	Abs string
	Rel string
}

type Builder struct {
	root     string
	maxNodes int
	ignore   []string
}

func New(root string, maxNodes int) *Builder {
	return &Builder{root: root, maxNodes: maxNodes}
}

func (b *Builder) Root() string {
	return b.root
}

// Build walks the whole tree, stopping once maxNodes entries were visited.
func (b *Builder) Build() (Result, error) {
	root, err := filepath.Abs(b.root)
	if err != nil {
		return Result{}, fmt.Errorf("invalid root: %w", err)
	}

	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return Result{Root: []*model.Node{}}, nil
	}

	count := 0
	nodes := b.walk(root, "", &count)

	return Result{
		Root:      nodes,
		Truncated: b.maxNodes > 0 && count >= b.maxNodes,
	}, nil
}

func (b *Builder) walk(root, rel string, count *int) []*model.Node {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return []*model.Node{}
	}

	nodes := make([]*model.Node, 0, len(entries))
	for _, entry := range entries {
		if b.maxNodes > 0 && *count >= b.maxNodes {
			break
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		node := &model.Node{
			Name:    entry.Name(),
			Path:    path.Join(rel, entry.Name()),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime().UnixMilli(),
		}
		if info.Mode().IsRegular() {
			node.Size = new(info.Size())
		}

		nodes = append(nodes, node)
		*count++

		if node.IsDir {
			node.Children = b.walk(root, node.Path, count)
		}
	}

	sortNodes(nodes)
	return nodes
}

func sortNodes(nodes []*model.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsDir != nodes[j].IsDir {
			return nodes[i].IsDir
		}
		return strings.Compare(nodes[i].Name, nodes[j].Name) < 0
	})
}

// Delete removes rel recursively. The root itself cannot be deleted.
func (b *Builder) Delete(rel string) error {
	target, err := b.resolveEntry(rel)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to delete %s: %w", rel, err)
	}

	logger.Log.Info("public entry deleted", zap.String("path", rel))
	return nil
}

// DeleteFile removes a single regular file.
func (b *Builder) DeleteFile(rel string) error {
	target, err := b.resolveEntry(rel)
	if err != nil {
		return err
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotAFile, rel)
	}

	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to delete %s: %w", rel, err)
	}

	logger.Log.Info("public file deleted", zap.String("path", rel))
	return nil
}

// Rename moves oldRel to newRel, creating the destination's parents.
func (b *Builder) Rename(oldRel, newRel string) error {
	src, err := b.resolveEntry(oldRel)
	if err != nil {
		return err
	}

	dst, err := util.ResolveWithin(b.root, newRel)
	if err != nil {
		return err
	}
	if b.isRoot(dst) {
		return fmt.Errorf("%w: cannot replace root", util.ErrInvalidPath)
	}

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrConflict, newRel)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", oldRel, err)
	}

	logger.Log.Info("public entry renamed",
		zap.String("from", oldRel),
		zap.String("to", newRel))
	return nil
}

// CollectFiles returns every regular file at or under rel, sorted by path.
// Entries below rel matching an ignore pattern are skipped.
func (b *Builder) CollectFiles(rel string) ([]File, error) {
	target, err := util.ResolveWithin(b.root, rel)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	var files []File
	err = filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != target && shouldIgnore(util.RelSlash(target, p), b.ignore) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, File{Abs: p, Rel: util.RelSlash(b.root, p)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", rel, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Rel < files[j].Rel
	})

	return files, nil
}

func (b *Builder) resolveEntry(rel string) (string, error) {
	target, err := util.ResolveWithin(b.root, rel)
	if err != nil {
		return "", err
	}
	if b.isRoot(target) {
		return "", fmt.Errorf("%w: root is not addressable", util.ErrInvalidPath)
	}

	if _, err := os.Lstat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	return target, nil
}

func (b *Builder) isRoot(p string) bool {
	root, err := filepath.Abs(b.root)
	if err != nil {
		return false
	}
	return p == root
}
