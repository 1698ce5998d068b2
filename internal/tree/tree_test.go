package tree

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fetchrelay/internal/util"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "B.txt", "B")
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "zdir/inner.txt", "x")
	writeFile(t, root, "adir/inner.txt", "y")

	res, err := New(root, 100).Build()
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, n := range res.Root {
		names = append(names, n.Name)
	}

	want := []string{"adir", "zdir", "B.txt", "a.txt", "b.txt"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	if res.Truncated {
		t.Fatal("tree should not be truncated")
	}

	adir := res.Root[0]
	if !adir.IsDir || len(adir.Children) != 1 || adir.Children[0].Path != "adir/inner.txt" {
		t.Fatalf("unexpected dir node %+v", adir)
	}
	if adir.Size != nil {
		t.Fatal("directories carry no size")
	}
	if f := res.Root[3]; f.Size == nil || *f.Size != 1 {
		t.Fatalf("unexpected file size for %s", f.Name)
	}
}

func TestBuildTruncates(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		writeFile(t, root, name, name)
	}

	res, err := New(root, 3).Build()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated || len(res.Root) != 3 {
		t.Fatalf("expected 3 truncated nodes, got %d truncated=%v", len(res.Root), res.Truncated)
	}
}

func TestBuildMissingRoot(t *testing.T) {
	res, err := New(filepath.Join(t.TempDir(), "missing"), 10).Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Root) != 0 || res.Truncated {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/a.txt", "a")
	b := New(root, 100)

	if err := b.Delete("dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "dir")); !os.IsNotExist(err) {
		t.Fatal("directory should be removed")
	}

	if err := b.Delete("dir"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := b.Delete(""); !errors.Is(err, util.ErrInvalidPath) {
		t.Fatalf("root delete must be refused, got %v", err)
	}
	if err := b.Delete("../outside"); !errors.Is(err, util.ErrInvalidPath) {
		t.Fatalf("traversal must be refused, got %v", err)
	}
}

func TestDeleteFileRejectsDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/a.txt", "a")

	if err := New(root, 100).DeleteFile("dir"); !errors.Is(err, ErrNotAFile) {
		t.Fatalf("expected ErrNotAFile, got %v", err)
	}
}

func TestRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	b := New(root, 100)

	if err := b.Rename("a.txt", "a.txt"); !errors.Is(err, ErrConflict) {
		t.Fatalf("same path must conflict, got %v", err)
	}
	if err := b.Rename("a.txt", "b.txt"); !errors.Is(err, ErrConflict) {
		t.Fatalf("existing destination must conflict, got %v", err)
	}
	if err := b.Rename("missing.txt", "c.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := b.Rename("a.txt", "../../c.txt"); !errors.Is(err, util.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}

	if err := b.Rename("a.txt", "new/dir/c.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "new", "dir", "c.txt")); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "show/s02/e01.mkv", "1")
	writeFile(t, root, "show/s01/e02.mkv", "2")
	writeFile(t, root, "show/s01/e01.mkv", "3")

	files, err := New(root, 100).CollectFiles("show")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"show/s01/e01.mkv", "show/s01/e02.mkv", "show/s02/e01.mkv"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(files))
	}
	for i := range want {
		if files[i].Rel != want[i] {
			t.Fatalf("expected %v, got %+v", want, files)
		}
	}

	single, err := New(root, 100).CollectFiles("show/s02/e01.mkv")
	if err != nil || len(single) != 1 {
		t.Fatalf("single file collect failed: %v %+v", err, single)
	}

	if _, err := New(root, 100).CollectFiles("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPagination(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 12; i++ {
		writeFile(t, root, string(rune('a'+i))+".mp4", "x")
	}
	writeFile(t, root, "sub/ignored.mp4", "x")

	b := New(root, 100)
	res := b.List("", 2, 5, "/dl/")
	if res.Total != 12 || len(res.Items) != 5 || res.Items[0].Name != "f.mp4" {
		t.Fatalf("unexpected page %+v", res)
	}
	if res.Items[0].PublicURL != "/dl/f.mp4" {
		t.Fatalf("unexpected url %q", res.Items[0].PublicURL)
	}

	filtered := b.List("A.MP", 1, 50, "/dl/")
	if filtered.Total != 1 || filtered.Items[0].Name != "a.mp4" {
		t.Fatalf("unexpected filter result %+v", filtered)
	}

	past := b.List("", 10, 50, "/dl/")
	if past.Total != 12 || len(past.Items) != 0 {
		t.Fatalf("unexpected past-end page %+v", past)
	}
}

func TestCollectFilesSkipsIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "album/01.mp3", "1")
	writeFile(t, root, "album/.DS_Store", "x")
	writeFile(t, root, "album/02.mp3.part", "2")
	writeFile(t, root, "album/.cache/thumb.jpg", "t")

	b := New(root, 0)
	b.SetIgnore([]string{".*", "*.part"})

	files, err := b.CollectFiles("album")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Rel != "album/01.mp3" {
		t.Fatalf("unexpected files %+v", files)
	}

	// an explicitly named file is never filtered
	files, err = b.CollectFiles("album/02.mp3.part")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected the named file, got %+v", files)
	}
}
