// Package detect locates the ADT project a console should watch.
package detect

import (
	"os"
	"path/filepath"
)

// CortexDir is the governance directory every ADT project carries.
const CortexDir = "_cortex"

// indicators are the files whose presence under CortexDir marks a
// governed project. A bare _cortex directory also counts.
var indicators = []string{
	"tasks.json",
	"phases.json",
	filepath.Join("ads", "events.jsonl"),
}

// IsProject reports whether dir is the root of an ADT project.
func IsProject(dir string) bool {
	return dirExists(filepath.Join(dir, CortexDir))
}

// HasGovernanceData reports whether the project at dir holds any task,
// phase or event files yet.
func HasGovernanceData(dir string) bool {
	for _, name := range indicators {
		if fileExists(filepath.Join(dir, CortexDir, name)) {
			return true
		}
	}
	return false
}

// ProjectRoot walks up from start and returns the nearest directory that
// is an ADT project.
func ProjectRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if IsProject(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// dirExists returns true if path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// fileExists returns true if path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
