package syncengine

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	syncerrors "memsync/internal/pkg/errors"
)

// SyncEnvelope is the wire form of an encrypted batch of DeltaEntries.
// Version is deliberately left unencrypted so a recipient can decide
// whether the batch is worth decrypting before paying the cost.
type SyncEnvelope struct {
	Nonce      []byte         `json:"nonce"`
	Ciphertext []byte         `json:"ciphertext"`
	Sender     DeviceID       `json:"sender"`
	Version    *VersionVector `json:"version"`
}

// CryptoBox performs authenticated symmetric encryption of delta
// batches using a 256-bit key shared out-of-band between a user's
// devices. It uses XChaCha20-Poly1305, whose 24-byte nonce makes
// random generation safe for the envelope's lifetime without a
// per-message counter.
type CryptoBox struct {
	aead cipher.AEAD
}

// NewCryptoBox builds a CryptoBox from a 32-byte shared secret.
func NewCryptoBox(key []byte) (*CryptoBox, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, syncerrors.NewValidationError("key", err.Error())
	}
	return &CryptoBox{aead: aead}, nil
}

// Encrypt serializes entries to canonical JSON, seals them under a
// fresh nonce, and returns the resulting envelope stamped with sender
// and version.
func (c *CryptoBox) Encrypt(entries []*DeltaEntry, sender DeviceID, version *VersionVector) (*SyncEnvelope, error) {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return nil, syncerrors.Wrap(err, "marshal delta entries")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, syncerrors.NewInternalError("generate nonce", err)
	}

	ciphertext := c.aead.Seal(nil, nonce, plaintext, nil)

	return &SyncEnvelope{
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Sender:     sender,
		Version:    version,
	}, nil
}

// Decrypt authenticates and opens an envelope, returning the entries it
// carried. Any MAC mismatch or malformed nonce is a permanent
// CryptoFailure — the envelope is unrecoverable and must be dropped.
func (c *CryptoBox) Decrypt(env *SyncEnvelope) ([]*DeltaEntry, error) {
	if len(env.Nonce) != c.aead.NonceSize() {
		return nil, syncerrors.NewPermanentError("decrypt envelope", fmt.Errorf("bad nonce length %d", len(env.Nonce)))
	}

	plaintext, err := c.aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, syncerrors.NewPermanentError("decrypt envelope", err)
	}

	var entries []*DeltaEntry
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, syncerrors.Wrap(err, "unmarshal delta entries")
	}
	return entries, nil
}

// reconstructFromFullSyncData rebuilds an envelope from a FullSyncData
// wire message. The construction used here (chacha20poly1305.NewX)
// embeds the authentication tag in the ciphertext, so auth_tag is
// accepted on the wire for compatibility but never consulted — the
// envelope decrypts from nonce+ciphertext alone.
func reconstructFromFullSyncData(iv, encryptedPayload []byte, sender DeviceID) *SyncEnvelope {
	return &SyncEnvelope{
		Nonce:      iv,
		Ciphertext: encryptedPayload,
		Sender:     sender,
		Version:    NewVersionVector(),
	}
}

// EncodeBase64 / DecodeBase64 are convenience wrappers for the
// base64-carried byte fields in wire messages (nonce, ciphertext, iv,
// encrypted_payload, auth_tag).
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
