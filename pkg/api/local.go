package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// archiveDirPattern matches the first path segment of an archive request.
var archiveDirPattern = regexp.MustCompile(
	`^report-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`,
)

// localFileServer serves files of archived report folders from the local
// filesystem. Request paths are resolved relative to root and must start
// with a report-<timestamp> folder.
type localFileServer struct {
	log  logrus.FieldLogger
	root string
}

// newLocalFileServer creates a new local file server rooted at root.
func newLocalFileServer(log logrus.FieldLogger, root string) *localFileServer {
	return &localFileServer{
		log:  log.WithField("component", "local-file-server"),
		root: filepath.Clean(root),
	}
}

// ServeFile serves filePath from an archive folder under root. Returns an
// error when the path is disallowed or not found.
func (l *localFileServer) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	filePath string,
) error {
	if !isAllowedArchivePath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(l.root, filepath.FromSlash(filePath))

	// Ensure the resolved path stays under root.
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes archive root", filePath)
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Errorf("file %q not found", filePath)
	}

	http.ServeFile(w, r, full)

	return nil
}

// isAllowedArchivePath rejects empty, absolute, unclean, or traversal
// request paths and paths outside an archive folder.
func isAllowedArchivePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	if strings.HasPrefix(filePath, "/") || filepath.IsAbs(filePath) {
		return false
	}

	if path.Clean(filePath) != filePath {
		return false
	}

	first, rest, ok := strings.Cut(filePath, "/")
	if !ok || rest == "" {
		return false
	}

	return archiveDirPattern.MatchString(first)
}
