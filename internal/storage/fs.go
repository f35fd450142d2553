package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSStore saves attachment bytes on the local filesystem, one directory per
// ticket, with randomized file names so sender-supplied names cannot collide
// or escape the directory.
type FSStore struct {
	baseDir string
}

// NewFSStore constructs a store rooted at baseDir.
func NewFSStore(baseDir string) *FSStore {
	return &FSStore{baseDir: baseDir}
}

// Save writes the attachment and returns its storage key (the relative path
// under the base directory).
func (s *FSStore) Save(_ context.Context, ticketID int64, fileName string, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, fmt.Sprintf("ticket_%d", ticketID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("attachment dir: %w", err)
	}
	unique := strings.ReplaceAll(uuid.NewString(), "-", "") + safeExtension(fileName)
	path := filepath.Join(dir, unique)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("attachment write: %w", err)
	}
	return filepath.Join(fmt.Sprintf("ticket_%d", ticketID), unique), nil
}

func safeExtension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if r != '.' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
