package tree

import (
	"os"
	"sort"
	"strings"

	"fetchrelay/internal/util"
)

const (
	DefaultPerPage = 50
	minPerPage     = 5
	maxPerPage     = 200
)

type ListItem struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	ModTime   int64  `json:"mtime"`
	PublicURL string `json:"publicUrl"`
}

type ListResult struct {
	Items []ListItem `json:"items"`
	Total int        `json:"total"`
}

// List pages through the regular files directly under the root, optionally
// filtered by a case-insensitive substring.
func (b *Builder) List(query string, page, perPage int, prefix string) ListResult {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return ListResult{Items: []ListItem{}}
	}

	if page < 1 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	perPage = max(minPerPage, min(maxPerPage, perPage))
	query = strings.ToLower(query)

	var all []ListItem
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(entry.Name()), query) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		all = append(all, ListItem{
			Name:      entry.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime().UnixMilli(),
			PublicURL: util.PublicURL(prefix, entry.Name()),
		})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})

	result := ListResult{Items: []ListItem{}, Total: len(all)}
	start := (page - 1) * perPage
	if start >= len(all) {
		return result
	}

	end := min(start+perPage, len(all))
	result.Items = all[start:end]
	return result
}
