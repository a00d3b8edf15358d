package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/unitd/internal/log"
)

// remoteFilesystems break SQLite's file locking.
var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "smbfs", "smb2", "webdav"}

// requireLocalFilesystem rejects database paths on a network mount. If the
// filesystem cannot be identified the path is allowed.
func requireLocalFilesystem(path string, identify func(string) (string, error)) error {
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := identify(dir)
	if err != nil {
		log.WithComponent("storage").Debug("filesystem type unknown, skipping locality check", "path", dir, "error", err)
		return nil
	}

	fsType = strings.ToLower(strings.TrimSpace(fsType))
	for _, remote := range remoteFilesystems {
		if fsType == remote {
			return fmt.Errorf("database path %q is on network filesystem %q; SQLite requires a local filesystem, set state.path to a local file", path, fsType)
		}
	}
	return nil
}

// existingAncestor returns path or its closest ancestor that exists.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		p = parent
	}
}
