// Package abtest builds Android backup (.ab) streams for tests
package abtest

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	compression "github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil/compressiontest"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
)

// DefaultRounds matches the backup manager's PBKDF2 iteration count
const DefaultRounds = 10000

// Options controls how Encode wraps a tar stream
type Options struct {
	FormatVersion int
	Compress      bool
	Password      string
	Rounds        int
}

// Encode writes tarData as an .ab stream. A non-empty password produces an AES-256 backup.
func Encode(w io.Writer, tarData []byte, opts Options) error {
	if opts.FormatVersion == 0 {
		opts.FormatVersion = 5
	}
	if opts.Rounds == 0 {
		opts.Rounds = DefaultRounds
	}

	payload := tarData
	if opts.Compress {
		var err error
		if payload, err = compressiontest.Compress(payload, compression.FormatZlib); err != nil {
			return err
		}
	}

	var header bytes.Buffer
	header.WriteString(android.Magic)
	fmt.Fprintf(&header, "%d\n", opts.FormatVersion)
	if opts.Compress {
		header.WriteString("1\n")
	} else {
		header.WriteString("0\n")
	}

	if opts.Password == "" {
		header.WriteString(android.EncryptionNone + "\n")
	} else {
		encrypted, lines, err := encrypt(payload, opts)
		if err != nil {
			return err
		}
		header.WriteString(android.EncryptionAES256 + "\n")
		header.WriteString(lines)
		payload = encrypted
	}

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func encrypt(payload []byte, opts Options) ([]byte, string, error) {
	userSalt, err := randomBytes(64)
	if err != nil {
		return nil, "", err
	}
	checksumSalt, err := randomBytes(64)
	if err != nil {
		return nil, "", err
	}
	userIV, err := randomBytes(16)
	if err != nil {
		return nil, "", err
	}
	masterIV, err := randomBytes(16)
	if err != nil {
		return nil, "", err
	}
	masterKey, err := randomBytes(android.KeySize)
	if err != nil {
		return nil, "", err
	}

	checksum := android.DeriveKey(android.ChecksumInput(masterKey, opts.FormatVersion), checksumSalt, opts.Rounds)
	blob := make([]byte, 0, 3+len(masterIV)+len(masterKey)+len(checksum))
	blob = append(blob, byte(len(masterIV)))
	blob = append(blob, masterIV...)
	blob = append(blob, byte(len(masterKey)))
	blob = append(blob, masterKey...)
	blob = append(blob, byte(len(checksum)))
	blob = append(blob, checksum...)

	userKey := android.DeriveKey([]byte(opts.Password), userSalt, opts.Rounds)
	encryptedBlob, err := cryptoutil.EncryptCBC(userKey, userIV, cryptoutil.PKCS7Pad(blob, 16))
	if err != nil {
		return nil, "", err
	}
	encrypted, err := cryptoutil.EncryptCBC(masterKey, masterIV, cryptoutil.PKCS7Pad(payload, 16))
	if err != nil {
		return nil, "", err
	}

	lines := strings.Join([]string{
		strings.ToUpper(hex.EncodeToString(userSalt)),
		strings.ToUpper(hex.EncodeToString(checksumSalt)),
		fmt.Sprintf("%d", opts.Rounds),
		strings.ToUpper(hex.EncodeToString(userIV)),
		strings.ToUpper(hex.EncodeToString(encryptedBlob)),
	}, "\n") + "\n"
	return encrypted, lines, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
