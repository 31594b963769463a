package media

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
}

// Store saves proof videos on local disk under a configured upload
// directory. Stored files get random names; the original filename only
// contributes its extension.
type Store struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewStore creates the upload directory if needed and returns a Store
func NewStore(cfg *config.MediaConfig, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{
		dir:      cfg.UploadDir,
		maxBytes: cfg.MaxUploadBytes,
		logger:   logger,
	}, nil
}

// Save validates and stores an uploaded video, returning the public URL path
// it will be served under.
func (s *Store) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		return "", domain.Validationf("unsupported video format %q", ext)
	}
	if header.Size > s.maxBytes {
		return "", domain.Validationf("video exceeds the %dMB limit", s.maxBytes>>20)
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer dst.Close()

	// The request body is also capped by MaxBytesReader upstream; the limit
	// here guards against a forged Content-Length.
	written, err := io.Copy(dst, io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if written > s.maxBytes {
		os.Remove(path)
		return "", domain.Validationf("video exceeds the %dMB limit", s.maxBytes>>20)
	}

	s.logger.Debug("video stored", "file", name, "bytes", written)
	return "/uploads/" + name, nil
}

// Open resolves a stored filename for serving. Path traversal outside the
// upload directory is rejected.
func (s *Store) Open(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", domain.ErrRecordNotFound
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", domain.ErrRecordNotFound
	}
	return path, nil
}

// Remove deletes a stored video given its public URL path. External URLs and
// already-missing files are ignored.
func (s *Store) Remove(proofURL string) {
	name, ok := storedFilename(proofURL)
	if !ok {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove video", "file", name, "error", err)
	}
}

// ValidateExternalURL accepts proof links hosted on Instagram
func ValidateExternalURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.Validationf("invalid proof URL")
	}
	host := strings.ToLower(u.Hostname())
	if host == "instagram.com" || strings.HasSuffix(host, ".instagram.com") {
		return nil
	}
	return domain.Validationf("external proof links must be hosted on instagram.com")
}

// storedFilename extracts the local filename from a /uploads/ URL path
func storedFilename(proofURL string) (string, bool) {
	const prefix = "/uploads/"
	if !strings.HasPrefix(proofURL, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(proofURL, prefix)
	if name == "" || name != filepath.Base(name) {
		return "", false
	}
	return name, true
}
