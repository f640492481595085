package director

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FolderName turns a title into a storage-safe folder name
func FolderName(title string) string {
	name := strings.ToLower(strings.TrimSpace(title))
	name = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(name)
	if name == "" {
		return "untitled"
	}
	return name
}

// GenerateManifestPath creates a timestamped manifest filename in dir
func GenerateManifestPath(dir, title string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.yaml", FolderName(title), timestamp))
}

// FindLatestManifest finds the most recent manifest file in dir
func FindLatestManifest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest directory: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var manifests []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		manifests = append(manifests, candidate{filepath.Join(dir, entry.Name()), info.ModTime()})
	}

	if len(manifests) == 0 {
		return "", fmt.Errorf("no manifest files found in %s", dir)
	}

	// newest first
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].mod.After(manifests[j].mod)
	})

	return manifests[0].path, nil
}
