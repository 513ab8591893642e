// Package android decodes Android adb backups (.ab): the text header, the AES-256
// envelope, the zlib payload and the AOSP tar layout inside it.
package android

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/spf13/afero"
)

const (
	// Magic is the first header line of every .ab file
	Magic = "ANDROID BACKUP\n"

	EncryptionNone   = "none"
	EncryptionAES256 = "AES-256"
)

// Header holds the text lines preceding the .ab payload
type Header struct {
	FormatVersion int
	Compressed    bool
	Encryption    string

	// Populated for AES-256 backups only
	UserSalt      []byte
	ChecksumSalt  []byte
	Rounds        int
	UserIV        []byte
	MasterKeyBlob []byte
}

// Encrypted reports whether the payload is AES-256 encrypted
func (h *Header) Encrypted() bool {
	return h.Encryption == EncryptionAES256
}

// ParseHeader consumes the header lines from r, leaving r positioned at the payload
func ParseHeader(r *bufio.Reader) (*Header, error) {
	magic, err := r.ReadString('\n')
	if err != nil || magic != Magic {
		return nil, fmt.Errorf("%w: expected %q, got %q", errors.ErrFormat, strings.TrimSpace(Magic), strings.TrimSpace(magic))
	}

	h := &Header{}
	if h.FormatVersion, err = readIntLine(r, "format version"); err != nil {
		return nil, err
	}
	compression, err := readIntLine(r, "compression flag")
	if err != nil {
		return nil, err
	}
	h.Compressed = compression == 1
	if h.Encryption, err = readLine(r, "encryption"); err != nil {
		return nil, err
	}

	switch h.Encryption {
	case EncryptionNone:
		return h, nil
	case EncryptionAES256:
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedEncryption, h.Encryption)
	}

	if h.UserSalt, err = readHexLine(r, "user salt"); err != nil {
		return nil, err
	}
	if h.ChecksumSalt, err = readHexLine(r, "checksum salt"); err != nil {
		return nil, err
	}
	if h.Rounds, err = readIntLine(r, "pbkdf2 rounds"); err != nil {
		return nil, err
	}
	if h.UserIV, err = readHexLine(r, "user iv"); err != nil {
		return nil, err
	}
	if h.MasterKeyBlob, err = readHexLine(r, "master key blob"); err != nil {
		return nil, err
	}
	return h, nil
}

func readLine(r *bufio.Reader, field string) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", fmt.Errorf("%w: missing %s header line", errors.ErrFormat, field)
	}
	return strings.TrimSpace(line), nil
}

func readIntLine(r *bufio.Reader, field string) (int, error) {
	line, err := readLine(r, field)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errors.ErrFormat, field, line)
	}
	return n, nil
}

func readHexLine(r *bufio.Reader, field string) ([]byte, error) {
	line, err := readLine(r, field)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", errors.ErrFormat, field, err)
	}
	return b, nil
}

// IsAndroidBackup reports whether path is a regular file starting with the .ab magic
func IsAndroidBackup(fs afero.Fs, path string) bool {
	if !fsutil.FileExists(fs, path) {
		return false
	}
	header, err := fsutil.ReadFileHeader(fs, path, len(Magic))
	if err != nil {
		return false
	}
	return HasMagic(header)
}

// HasMagic reports whether data starts with the .ab magic line
func HasMagic(data []byte) bool {
	return len(data) >= len(Magic) && string(data[:len(Magic)]) == Magic
}
