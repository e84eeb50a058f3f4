package localdir

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DetectTargetDir looks for where documents belong inside the granted root.
// preferred wins if it exists; otherwise the first existing candidate, then
// the shallowest directory (up to maxDepth) whose name matches the last
// segment of preferred. Falling through returns preferred, which Write will
// create.
func (s *Store) DetectTargetDir(ctx context.Context, preferred string, candidates []string, maxDepth int) (string, error) {
	root, err := s.handle("detect", false)
	if err != nil {
		return "", err
	}

	isDir := func(rel string) bool {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		return err == nil && info.IsDir()
	}

	if preferred != "" && isDir(preferred) {
		return preferred, nil
	}
	for _, c := range candidates {
		if isDir(c) {
			return c, nil
		}
	}

	want := path.Base(preferred)
	if preferred == "" || want == "." {
		return preferred, nil
	}

	queue := []string{""}
	for depth := 0; depth <= maxDepth && len(queue) > 0; depth++ {
		var next []string
		for _, rel := range queue {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				continue
			}
			for _, e := range entries {
				if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || e.Name() == "node_modules" {
					continue
				}
				child := path.Join(rel, e.Name())
				if e.Name() == want {
					return child, nil
				}
				next = append(next, child)
			}
		}
		queue = next
	}
	return preferred, nil
}
