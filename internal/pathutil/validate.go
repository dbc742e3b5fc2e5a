// Package pathutil keeps pipeline file operations inside the project root.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath shortens a path to .../<parent>/<basename> for log lines and
// error messages, e.g. "/data/project/samples/0/sample.obj" becomes
// ".../0/sample.obj".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Within returns the absolute form of path after checking that it resolves
// inside root. Symlinks on the existing part of the path are followed, so a
// link pointing out of the project is rejected even if the target file does
// not exist yet.
func Within(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains null byte")
	}
	if root == "" {
		return "", fmt.Errorf("project root is empty")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", RedactPath(path), err)
	}
	rootAbs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}

	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", err
	}
	resolvedRoot, err := resolveExisting(rootAbs)
	if err != nil {
		return "", err
	}
	if !isSubpath(resolved, resolvedRoot) {
		return "", fmt.Errorf("%s is outside the project root", RedactPath(abs))
	}
	return abs, nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of p
// and re-appends the missing tail.
func resolveExisting(p string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(p)
	if parent == p {
		return "", fmt.Errorf("cannot resolve %s", RedactPath(p))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(p)), nil
}

func isSubpath(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}
