package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
)

// DecryptCBC decrypts data with AES in CBC mode. Padding is left in place.
func DecryptCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrInvalidKeyLength, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", commonerrors.ErrInvalidKeyLength, aes.BlockSize, len(iv))
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", commonerrors.ErrCorruptArchive, len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// EncryptCBC encrypts block-aligned data with AES in CBC mode
func EncryptCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrInvalidKeyLength, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", commonerrors.ErrInvalidKeyLength, aes.BlockSize, len(iv))
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d is not a multiple of the block size", len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// PKCS7Pad appends PKCS#7 padding for the given block size
func PKCS7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// PKCS7Unpad strips and validates PKCS#7 padding
func PKCS7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, commonerrors.ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, commonerrors.ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, commonerrors.ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
