package android

import (
	"crypto/sha1"
	"crypto/subtle"
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the length of every PBKDF2-derived key in the .ab envelope
const KeySize = 32

// MasterKey is the TLV content of the decrypted master key blob
type MasterKey struct {
	IV       []byte
	Key      []byte
	Checksum []byte
}

// DeriveKey runs PBKDF2-HMAC-SHA1 as the backup manager does
func DeriveKey(secret, salt []byte, rounds int) []byte {
	return pbkdf2.Key(secret, salt, rounds, KeySize, sha1.New)
}

// ChecksumInput returns the bytes the master key checksum is computed over. From
// format version 2 each byte is expanded the way Java's char-to-UTF-8 conversion does.
func ChecksumInput(masterKey []byte, formatVersion int) []byte {
	if formatVersion < 2 {
		return masterKey
	}
	out := make([]byte, 0, len(masterKey)*3)
	for _, b := range masterKey {
		if b < 0x80 {
			out = append(out, b)
			continue
		}
		c := uint16(b)
		out = append(out,
			byte(0xef|(c>>12)),
			byte(0xbc|((c>>6)&0x3f)),
			byte(0x80|(c&0x3f)),
		)
	}
	return out
}

// UnlockMasterKey decrypts the master key blob with the password and verifies its checksum
func UnlockMasterKey(h *Header, password string) (*MasterKey, error) {
	userKey := DeriveKey([]byte(password), h.UserSalt, h.Rounds)
	blob, err := cryptoutil.DecryptCBC(userKey, h.UserIV, h.MasterKeyBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}

	mk, err := parseMasterKeyBlob(blob)
	if err != nil {
		return nil, err
	}

	expected := DeriveKey(ChecksumInput(mk.Key, h.FormatVersion), h.ChecksumSalt, h.Rounds)
	if subtle.ConstantTimeCompare(expected, mk.Checksum) != 1 {
		return nil, errors.ErrAuthentication
	}
	return mk, nil
}

func parseMasterKeyBlob(blob []byte) (*MasterKey, error) {
	fields := make([][]byte, 0, 3)
	pos := 0
	for i := 0; i < 3; i++ {
		if pos >= len(blob) {
			return nil, errors.ErrAuthentication
		}
		n := int(blob[pos])
		pos++
		if pos+n > len(blob) {
			return nil, errors.ErrAuthentication
		}
		fields = append(fields, blob[pos:pos+n])
		pos += n
	}
	return &MasterKey{IV: fields[0], Key: fields[1], Checksum: fields[2]}, nil
}

// DecryptPayload unlocks the master key and decrypts the payload that follows the header
func DecryptPayload(h *Header, password string, payload []byte) ([]byte, error) {
	mk, err := UnlockMasterKey(h, password)
	if err != nil {
		return nil, err
	}
	plain, err := cryptoutil.DecryptCBC(mk.Key, mk.IV, payload)
	if err != nil {
		return nil, err
	}
	plain, err = cryptoutil.PKCS7Unpad(plain, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCorruptArchive, err)
	}
	return plain, nil
}
