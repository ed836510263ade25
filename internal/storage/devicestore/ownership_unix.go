//go:build !windows

package devicestore

import (
	"fmt"
	"os"
	"syscall"
)

// validateFileOwnership confirms the secret file is owned by the
// current user. Only meaningful on Unix; skipped where the underlying
// stat can't be interpreted as a Stat_t.
func validateFileOwnership(info os.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	currentUID := uint32(os.Getuid())
	if stat.Uid != currentUID {
		return fmt.Errorf("devicestore: shared secret must be owned by current user (file uid: %d, current uid: %d)", stat.Uid, currentUID)
	}
	return nil
}
