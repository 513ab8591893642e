// Package errors holds the sentinel errors shared by the decoders, the filesystem
// loader and the mappers. Failure sites wrap them with fmt.Errorf("%w: ...") so
// callers can test the category with errors.Is.
package errors

import (
	"errors"
)

var (
	// Container decoding
	ErrFormat                  = errors.New("unrecognized or malformed container")
	ErrAuthentication          = errors.New("invalid password or corrupted backup")
	ErrCorruptArchive          = errors.New("archive is corrupted")
	ErrMissingDependency       = errors.New("required decryption capability is unavailable")
	ErrPasswordRequired        = errors.New("encrypted backup requires a password")
	ErrUnsupportedEncryption   = errors.New("unsupported encryption algorithm")
	ErrEncryptedZipUnsupported = errors.New("encrypted backups in ZIP format are not supported, extract the ZIP first")

	// File & archive access
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFile   = errors.New("unsupported file format")
	ErrPathNotAccessible = errors.New("path is not accessible")
	ErrNotRegularFile    = errors.New("entry has no readable content")

	// Crypto
	ErrInvalidPadding   = errors.New("invalid PKCS7 padding")
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrKeyUnwrap        = errors.New("key unwrapping integrity check failed")
	ErrInvalidHasher    = errors.New("invalid hasher")

	// Compression
	ErrUnsupportedCompression = errors.New("unsupported compression format")

	// Control flow
	ErrCancelled = errors.New("operation cancelled")

	// Configuration
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigParseError = errors.New("error parsing configuration")
)
