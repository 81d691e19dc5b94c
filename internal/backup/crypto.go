package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

// Snapshots are sealed as [salt][nonce][AES-256-GCM ciphertext]. The
// salt travels with the file so any holder of the passphrase can
// decrypt it; a fresh salt per snapshot means two backups of the same
// database never share a key.
const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// Argon2id parameters for passphrase stretching.
const (
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// GenerateSalt returns a fresh random salt for one snapshot.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches the passphrase into an AES-256 key with
// Argon2id. Deterministic for a given passphrase and salt.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// EncryptFile seals srcPath into dstPath under the passphrase,
// prepending the salt and nonce so the file is self-describing.
func EncryptFile(srcPath, dstPath, passphrase string, salt []byte) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	gcm, err := newAEAD(passphrase, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	sealed = gcm.Seal(sealed, nonce, plaintext, nil)

	if err := os.WriteFile(dstPath, sealed, 0600); err != nil {
		return fmt.Errorf("write encrypted file: %w", err)
	}
	return nil
}

// DecryptFile opens a sealed snapshot at srcPath into dstPath. The
// salt and nonce come from the file header; GCM authentication makes
// a wrong passphrase or a tampered file fail rather than produce
// garbage.
func DecryptFile(srcPath, dstPath, passphrase string) error {
	sealed, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read encrypted file: %w", err)
	}
	if len(sealed) < saltSize+nonceSize {
		return errors.New("encrypted file too small")
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+nonceSize]
	ciphertext := sealed[saltSize+nonceSize:]

	gcm, err := newAEAD(passphrase, salt)
	if err != nil {
		return err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("write decrypted file: %w", err)
	}
	return nil
}
