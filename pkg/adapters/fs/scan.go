package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultRulePattern selects rule files directly inside the rules directory.
const DefaultRulePattern = "*.rule"

// ScanRules lists the rule files under dir matching the doublestar pattern,
// sorted, as paths joined onto dir. Hidden files and directories are skipped.
func ScanRules(dir, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid rule pattern %q", pattern)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules dir %s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to scan rules dir: %w", err)
	}

	paths := make([]string, 0, len(matches))
	for _, rel := range matches {
		if hiddenPath(rel) {
			continue
		}
		paths = append(paths, filepath.Join(dir, filepath.FromSlash(rel)))
	}
	slices.Sort(paths)
	return paths, nil
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if isHidden(part) || strings.HasPrefix(part, TempFilePrefix) {
			return true
		}
	}
	return false
}
