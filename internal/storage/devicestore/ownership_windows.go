//go:build windows

package devicestore

import "os"

// validateFileOwnership is a no-op on Windows, which uses ACLs rather
// than Unix-style uid/gid for file permissions.
func validateFileOwnership(info os.FileInfo) error {
	return nil
}
