// -----------------------------------------------------------------------
// Bundle storage - filesystem layout for rendered preview bundles
// -----------------------------------------------------------------------

package preview

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
)

// BundleStore writes rendered pages to <base>/<bundle_id>/index.html.
// Bundle ids are freshly generated per call, so directories are never
// shared across jobs; creation is exclusive.
type BundleStore struct {
	basePath string
	logger   arbor.ILogger
}

// NewBundleStore creates a bundle store rooted at basePath
func NewBundleStore(basePath string, logger arbor.ILogger) *BundleStore {
	return &BundleStore{
		basePath: basePath,
		logger:   logger,
	}
}

// CreateBundle writes html into a fresh bundle directory and returns the
// bundle id. Partial writes are cleaned up before the error is returned.
func (s *BundleStore) CreateBundle(html string) (string, error) {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create previews directory: %w", err)
	}

	bundleID := common.NewBundleID()
	bundlePath := filepath.Join(s.basePath, bundleID)

	// Exclusive create: a collision means the id generator is broken
	if err := os.Mkdir(bundlePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create bundle directory: %w", err)
	}

	indexPath := filepath.Join(bundlePath, "index.html")
	if err := os.WriteFile(indexPath, []byte(html), 0644); err != nil {
		os.RemoveAll(bundlePath)
		return "", fmt.Errorf("failed to write bundle index: %w", err)
	}

	s.logger.Info().
		Str("bundle_id", bundleID).
		Str("path", bundlePath).
		Msg("Bundle created")

	return bundleID, nil
}

// BundlePath returns the directory for a bundle id
func (s *BundleStore) BundlePath(bundleID string) string {
	return filepath.Join(s.basePath, bundleID)
}

// PreviewURL returns the serving path for a bundle
func (s *BundleStore) PreviewURL(bundleID string) string {
	return fmt.Sprintf("/p/%s/index.html", bundleID)
}

// RemoveBundle deletes a bundle directory
func (s *BundleStore) RemoveBundle(bundleID string) error {
	if !common.IsValidUUID(bundleID) {
		return fmt.Errorf("invalid bundle id: %s", bundleID)
	}
	return os.RemoveAll(filepath.Join(s.basePath, bundleID))
}
