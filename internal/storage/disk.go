package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mixelka/replypost/pkg/models"
)

// DiskStore writes attachments under a local directory that the forum's web
// server exposes. Each file lands in its own random subdirectory so original
// filenames never collide.
type DiskStore struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

// NewDiskStore creates a disk store rooted at dir; baseURL is the public
// prefix the files are served under.
func NewDiskStore(dir, baseURL string, logger *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return &DiskStore{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "disk_store"),
	}, nil
}

// Save writes the data and returns the stored file with its public URL.
func (s *DiskStore) Save(ctx context.Context, filename string, data []byte) (models.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredFile{}, err
	}

	name := sanitizeFilename(filename)
	id := uuid.NewString()

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to create directory for %q: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to write %q: %w", name, err)
	}

	s.logger.Debug("stored attachment", "name", name, "bytes", len(data))
	return models.StoredFile{
		Name: name,
		URL:  s.baseURL + "/" + id + "/" + url.PathEscape(name),
	}, nil
}

// sanitizeFilename reduces a client-supplied filename to a safe basename.
func sanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.Trim(name, ".")
	if name == "" {
		return "attachment"
	}
	return name
}
