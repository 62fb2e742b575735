package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// URLPrefix is the public path under which the product image tree is served.
const URLPrefix = "/imagenes/productos"

// imageExtensions is the allow-list of file extensions treated as images.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Index lists product images straight from the filesystem. Every call
// re-scans the directory tree; there is no cache to invalidate.
type Index struct {
	root string
}

// NewIndex creates an index rooted at the product image directory
// (the directory containing one subfolder per size).
func NewIndex(root string) *Index {
	return &Index{root: root}
}

// ListBySize returns the public URLs of all images in one size folder.
// A missing folder yields an empty result, not an error.
func (ix *Index) ListBySize(size string) []string {
	entries, err := os.ReadDir(filepath.Join(ix.root, size))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read product folder", "size", size, "error", err)
		}
		return nil
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || !isImage(entry.Name()) {
			continue
		}
		images = append(images, URLPrefix+"/"+size+"/"+entry.Name())
	}
	return images
}

// ListAll returns the public URLs of all images across every size folder,
// in size order.
func (ix *Index) ListAll() []string {
	var images []string
	for _, size := range Sizes() {
		images = append(images, ix.ListBySize(size)...)
	}
	return images
}

// Walk returns the public URLs of every image anywhere under the root,
// including images not filed into a size folder.
func (ix *Index) Walk() []string {
	var images []string
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees degrade to whatever was found so far.
			return fs.SkipDir
		}
		if d.IsDir() || !isImage(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(ix.root, path)
		if relErr != nil {
			return nil
		}
		images = append(images, URLPrefix+"/"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to walk product tree", "root", ix.root, "error", err)
	}
	return images
}

func isImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}
