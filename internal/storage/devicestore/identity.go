// Package devicestore persists the two process-wide singletons the
// sync core depends on: the device's identity and its shared
// encryption secret. Both are created lazily on first start and never
// mutated during a run. Files are written 0600 under a 0700 directory;
// the shared secret's permissions and ownership are validated on load.
package devicestore

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"memsync/internal/syncengine"
)

const (
	deviceIDFileName = "device_id"
	secretFileName   = "shared_secret"
	secretKeySize    = 32
)

// LoadOrCreateDeviceID reads the device identity file under dataDir,
// creating one with a fresh UUID if it doesn't exist yet.
func LoadOrCreateDeviceID(dataDir string) (syncengine.DeviceID, error) {
	path := filepath.Join(dataDir, deviceIDFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id == "" {
			return "", fmt.Errorf("devicestore: %s is empty", path)
		}
		return syncengine.DeviceID(id), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("devicestore: read device id: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("devicestore: create data dir: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("devicestore: write device id: %w", err)
	}
	return syncengine.DeviceID(id), nil
}

// LoadOrCreateSharedSecret reads the 32-byte shared secret file under
// dataDir, generating a fresh random key if it doesn't exist yet.
// Existing secrets are validated for safe permissions and, on Unix,
// ownership before being trusted — an insecurely-permissioned secret
// file is refused rather than silently used, since it may have been
// readable by another local user.
func LoadOrCreateSharedSecret(dataDir string) ([]byte, error) {
	path := filepath.Join(dataDir, secretFileName)

	info, err := os.Stat(path)
	if err == nil {
		if err := validatePermissions(info); err != nil {
			return nil, err
		}
		if err := validateFileOwnership(info); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("devicestore: read shared secret: %w", err)
		}
		if len(data) != secretKeySize {
			return nil, fmt.Errorf("devicestore: shared secret has wrong length %d, want %d", len(data), secretKeySize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("devicestore: stat shared secret: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("devicestore: create data dir: %w", err)
	}

	secret := make([]byte, secretKeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("devicestore: generate shared secret: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("devicestore: write shared secret: %w", err)
	}
	return secret, nil
}

func validatePermissions(info os.FileInfo) error {
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("devicestore: insecure shared secret permissions %o (want 0600 or stricter)", mode)
	}
	return nil
}

// DefaultDataDir returns ~/.memsync, the conventional per-user data
// directory for device identity, shared secret, and the journal mirror.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".memsync"), nil
}
