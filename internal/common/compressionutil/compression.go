package compression

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/spf13/afero"
)

// Format identifies a container or stream compression format
type Format string

const (
	FormatUnknown Format = ""
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatGzip    Format = "gzip"
	FormatBzip2   Format = "bzip2"
	FormatXz      Format = "xz"
	FormatZlib    Format = "zlib"
)

// HeaderSize is the number of leading bytes DetectFormat needs to see every supported magic number
const HeaderSize = 512

// tarMagicOffset is where the POSIX "ustar" magic lives in a tar header block
const tarMagicOffset = 257

var magicNumbers = []struct {
	format Format
	magic  []byte
}{
	{FormatZip, []byte{0x50, 0x4B, 0x03, 0x04}},
	{FormatZip, []byte{0x50, 0x4B, 0x05, 0x06}},
	{FormatGzip, []byte{0x1F, 0x8B}},
	{FormatBzip2, []byte{0x42, 0x5A, 0x68}},
	{FormatXz, []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}},
}

// DetectFormat determines a format from the leading bytes of a stream
func DetectFormat(header []byte) Format {
	for _, m := range magicNumbers {
		if bytes.HasPrefix(header, m.magic) {
			return m.format
		}
	}
	if len(header) >= tarMagicOffset+5 && bytes.Equal(header[tarMagicOffset:tarMagicOffset+5], []byte("ustar")) {
		return FormatTar
	}
	if IsZlibHeader(header) {
		return FormatZlib
	}
	return FormatUnknown
}

// IsZlibHeader reports whether header starts with a valid zlib CMF/FLG pair
func IsZlibHeader(header []byte) bool {
	if len(header) < 2 {
		return false
	}
	cmf, flg := header[0], header[1]
	return cmf&0x0F == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// DetectArchiveFormat determines the archive format of a file using magic numbers and
// falls back to the file extension
func DetectArchiveFormat(fs afero.Fs, filename string) Format {
	header, err := fsutil.ReadFileHeader(fs, filename, HeaderSize)
	if err == nil {
		if format := DetectFormat(header); format != FormatUnknown && format != FormatZlib {
			return format
		}
	}

	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatGzip
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return FormatBzip2
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatXz
	default:
		return FormatUnknown
	}
}

// IsTarFamily reports whether format is a tar stream, plain or compressed
func (f Format) IsTarFamily() bool {
	switch f {
	case FormatTar, FormatGzip, FormatBzip2, FormatXz:
		return true
	}
	return false
}
