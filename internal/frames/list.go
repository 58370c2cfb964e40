package frames

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// List returns the image files in dir sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
