package ios

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/plistutil"
	"golang.org/x/crypto/pbkdf2"
)

// Class key wrap types
const (
	WrapDevice   = 1
	WrapPasscode = 2
)

var zeroIV = make([]byte, 16)

// ClassKey is one protection class entry of a keybag
type ClassKey struct {
	Class      uint32
	Wrap       uint32
	KeyType    uint32
	WrappedKey []byte
	Key        []byte
}

// KeyBag is the parsed BackupKeyBag from Manifest.plist
type KeyBag struct {
	Type      uint32
	UUID      []byte
	Wrap      uint32
	Attrs     map[string][]byte
	ClassKeys map[uint32]*ClassKey
}

// ParseKeyBag decodes the tag/length/value keybag format
func ParseKeyBag(data []byte) (*KeyBag, error) {
	kb := &KeyBag{
		Attrs:     make(map[string][]byte),
		ClassKeys: make(map[uint32]*ClassKey),
	}

	var current *ClassKey
	flush := func() {
		if current != nil {
			kb.ClassKeys[current.Class] = current
		}
	}

	for pos := 0; pos < len(data); {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated keybag", errors.ErrFormat)
		}
		tag := string(data[pos : pos+4])
		length := int(binary.BigEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if pos+length > len(data) {
			return nil, fmt.Errorf("%w: keybag tag %s overruns buffer", errors.ErrFormat, tag)
		}
		value := data[pos : pos+length]
		pos += length

		switch {
		case tag == "TYPE":
			kb.Type = beUint32(value)
		case tag == "UUID" && kb.UUID == nil:
			kb.UUID = value
		case tag == "WRAP" && kb.Wrap == 0 && current == nil:
			kb.Wrap = beUint32(value)
		case tag == "UUID":
			flush()
			current = &ClassKey{}
		case current != nil && tag == "CLAS":
			current.Class = beUint32(value)
		case current != nil && tag == "WRAP":
			current.Wrap = beUint32(value)
		case current != nil && tag == "KTYP":
			current.KeyType = beUint32(value)
		case current != nil && tag == "WPKY":
			current.WrappedKey = value
		default:
			kb.Attrs[tag] = value
		}
	}
	flush()
	return kb, nil
}

func beUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (kb *KeyBag) attrInt(tag string) int {
	return int(beUint32(kb.Attrs[tag]))
}

// PasscodeKey derives the key that unwraps passcode-protected class keys. Keybags from
// iOS 10.2 on add a PBKDF2-SHA256 round ahead of the PBKDF2-SHA1 one.
func (kb *KeyBag) PasscodeKey(password string) []byte {
	secret := []byte(password)
	if salt, ok := kb.Attrs["DPSL"]; ok {
		secret = pbkdf2.Key(secret, salt, kb.attrInt("DPIC"), 32, sha256.New)
	}
	return pbkdf2.Key(secret, kb.Attrs["SALT"], kb.attrInt("ITER"), 32, sha1.New)
}

// Unlock unwraps every passcode-protected class key. A wrong password fails the key
// wrap integrity check and yields ErrAuthentication.
func (kb *KeyBag) Unlock(password string) error {
	key := kb.PasscodeKey(password)
	for _, ck := range kb.ClassKeys {
		if ck.WrappedKey == nil || ck.Wrap&WrapPasscode == 0 {
			continue
		}
		k, err := cryptoutil.UnwrapKey(key, ck.WrappedKey)
		if err != nil {
			return errors.ErrAuthentication
		}
		ck.Key = k
	}
	return nil
}

// UnwrapForClass unwraps a per-object key with the key of its protection class
func (kb *KeyBag) UnwrapForClass(class uint32, wrapped []byte) ([]byte, error) {
	ck, ok := kb.ClassKeys[class]
	if !ok || ck.Key == nil {
		return nil, fmt.Errorf("%w: no unlocked key for protection class %d", errors.ErrAuthentication, class)
	}
	return cryptoutil.UnwrapKey(ck.Key, wrapped)
}

// Decryptor decrypts the protected objects of an encrypted backup
type Decryptor interface {
	DecryptManifestDB(data []byte) ([]byte, error)
	DecryptFile(meta *FileMeta, data []byte) ([]byte, error)
}

// Unlocker turns Manifest.plist and a password into a Decryptor
type Unlocker interface {
	Unlock(manifest map[string]interface{}, password string) (Decryptor, error)
}

// KeyBagUnlocker is the built-in Unlocker for encrypted iTunes-style backups
type KeyBagUnlocker struct{}

// Unlock implements Unlocker
func (KeyBagUnlocker) Unlock(manifest map[string]interface{}, password string) (Decryptor, error) {
	bagData, ok := plistutil.GetBytes(manifest, "BackupKeyBag")
	if !ok {
		return nil, fmt.Errorf("%w: %s has no BackupKeyBag", errors.ErrFormat, ManifestPlist)
	}
	manifestKey, ok := plistutil.GetBytes(manifest, "ManifestKey")
	if !ok || len(manifestKey) < 4 {
		return nil, fmt.Errorf("%w: %s has no ManifestKey", errors.ErrFormat, ManifestPlist)
	}

	kb, err := ParseKeyBag(bagData)
	if err != nil {
		return nil, err
	}
	if err := kb.Unlock(password); err != nil {
		return nil, err
	}

	class := binary.LittleEndian.Uint32(manifestKey[:4])
	key, err := kb.UnwrapForClass(class, manifestKey[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}
	return &keyBagDecryptor{keyBag: kb, manifestKey: key}, nil
}

type keyBagDecryptor struct {
	keyBag      *KeyBag
	manifestKey []byte
}

func (d *keyBagDecryptor) DecryptManifestDB(data []byte) ([]byte, error) {
	return decryptObject(d.manifestKey, data, 0)
}

func (d *keyBagDecryptor) DecryptFile(meta *FileMeta, data []byte) ([]byte, error) {
	if meta == nil || len(meta.EncryptionKey) < 4 {
		return nil, fmt.Errorf("%w: file has no encryption key", errors.ErrNotRegularFile)
	}
	class := meta.ProtectionClass
	if class == 0 {
		class = binary.LittleEndian.Uint32(meta.EncryptionKey[:4])
	}
	key, err := d.keyBag.UnwrapForClass(class, meta.EncryptionKey[4:])
	if err != nil {
		return nil, err
	}
	return decryptObject(key, data, meta.Size)
}

// decryptObject decrypts with a zero IV, strips padding when valid and truncates to size
func decryptObject(key, data []byte, size int64) ([]byte, error) {
	plain, err := cryptoutil.DecryptCBC(key, zeroIV, data)
	if err != nil {
		return nil, err
	}
	if unpadded, err := cryptoutil.PKCS7Unpad(plain, 16); err == nil {
		plain = unpadded
	}
	if size > 0 && size < int64(len(plain)) {
		plain = plain[:size]
	}
	return plain, nil
}
