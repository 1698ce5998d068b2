package model

type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	IsDir    bool    `json:"isDir"`
	Size     *int64  `json:"size,omitempty"`
	ModTime  int64   `json:"mtime"`
	Children []*Node `json:"children,omitempty"`
}
