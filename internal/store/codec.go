package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// Codec transforms the medication blob on its way in and out of the
// key-value store. At-rest encryption is a deployment decision, so the
// store takes whichever codec the configuration selects.
type Codec interface {
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// PlainCodec stores the blob as-is.
type PlainCodec struct{}

func (PlainCodec) Encode(plain []byte) ([]byte, error)  { return plain, nil }
func (PlainCodec) Decode(stored []byte) ([]byte, error) { return stored, nil }

// AESCodec encrypts the blob with AES-256-GCM. The passphrase is hashed to
// key size; the nonce is prepended to the ciphertext.
type AESCodec struct {
	key [32]byte
}

func NewAESCodec(passphrase string) *AESCodec {
	return &AESCodec{key: sha256.Sum256([]byte(passphrase))}
}

func (c *AESCodec) Encode(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (c *AESCodec) Decode(stored []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(stored) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, ciphertext := stored[:gcm.NonceSize()], stored[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
