package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
	"github.com/ternarybob/pagesmith/internal/services/preview"
)

// previewPathPattern limits bundle-relative paths to plain file names;
// traversal characters never reach the filesystem
var previewPathPattern = regexp.MustCompile(`^[A-Za-z0-9_\-./]+$`)

// PreviewHandler serves generated bundles under /p/{bundle_id}/{path}.
// Responses carry a script-free CSP so a hostile bundle stays inert even
// if something slips past the sanitizer.
type PreviewHandler struct {
	bundles *preview.BundleStore
	logger  arbor.ILogger
}

// NewPreviewHandler creates a new PreviewHandler
func NewPreviewHandler(bundles *preview.BundleStore, logger arbor.ILogger) *PreviewHandler {
	return &PreviewHandler{bundles: bundles, logger: logger}
}

// ServePreview handles GET /p/{bundle_id}/{path}
func (h *PreviewHandler) ServePreview(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/p/")
	bundleID, filePath, found := strings.Cut(rest, "/")
	if !found || filePath == "" {
		http.NotFound(w, r)
		return
	}

	if !common.IsValidUUID(bundleID) {
		http.NotFound(w, r)
		return
	}
	if !previewPathPattern.MatchString(filePath) || strings.Contains(filePath, "..") {
		http.NotFound(w, r)
		return
	}

	fullPath := filepath.Join(h.bundles.BundlePath(bundleID), filepath.FromSlash(filePath))
	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; img-src https: data:; frame-ancestors 'none'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")

	http.ServeFile(w, r, fullPath)
}
