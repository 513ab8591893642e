package cryptoutil

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
)

// RFC 3394 default initial value
var keyWrapIV = []byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// UnwrapKey unwraps a key using AES key wrapping (RFC 3394)
func UnwrapKey(wrappingKey, wrappedKey []byte) ([]byte, error) {
	c, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrInvalidKeyLength, err)
	}
	if len(wrappedKey) < 24 || len(wrappedKey)%8 != 0 {
		return nil, fmt.Errorf("%w: wrapped key must be a multiple of 8 bytes and at least 24, got %d", commonerrors.ErrKeyUnwrap, len(wrappedKey))
	}

	n := len(wrappedKey)/8 - 1
	a := make([]byte, 8)
	copy(a, wrappedKey[:8])
	r := make([]byte, n*8)
	copy(r, wrappedKey[8:])

	block := make([]byte, aes.BlockSize)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(block[:8], binary.BigEndian.Uint64(a)^t)
			copy(block[8:], r[(i-1)*8:i*8])
			c.Decrypt(block, block)
			copy(a, block[:8])
			copy(r[(i-1)*8:i*8], block[8:])
		}
	}

	if subtle.ConstantTimeCompare(a, keyWrapIV) != 1 {
		return nil, commonerrors.ErrKeyUnwrap
	}
	return r, nil
}

// WrapKey wraps a key using AES key wrapping (RFC 3394)
func WrapKey(wrappingKey, keyToWrap []byte) ([]byte, error) {
	c, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrInvalidKeyLength, err)
	}
	if len(keyToWrap) < 16 || len(keyToWrap)%8 != 0 {
		return nil, fmt.Errorf("%w: key to wrap must be a multiple of 8 bytes and at least 16, got %d", commonerrors.ErrInvalidKeyLength, len(keyToWrap))
	}

	n := len(keyToWrap) / 8
	a := make([]byte, 8)
	copy(a, keyWrapIV)
	r := make([]byte, n*8)
	copy(r, keyToWrap)

	block := make([]byte, aes.BlockSize)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(block[:8], a)
			copy(block[8:], r[(i-1)*8:i*8])
			c.Encrypt(block, block)
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(a, binary.BigEndian.Uint64(block[:8])^t)
			copy(r[(i-1)*8:i*8], block[8:])
		}
	}

	out := make([]byte, 0, len(r)+8)
	out = append(out, a...)
	return append(out, r...), nil
}
