package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz"
)

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewReader wraps r with the decompressor for format. FormatTar and FormatUnknown pass r through.
func NewReader(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", errors.ErrCorruptArchive, err)
		}
		return gz, nil
	case FormatZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %v", errors.ErrCorruptArchive, err)
		}
		return zr, nil
	case FormatBzip2:
		bz, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: bzip2: %v", errors.ErrCorruptArchive, err)
		}
		return bz, nil
	case FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: xz: %v", errors.ErrCorruptArchive, err)
		}
		return readCloser{Reader: xr}, nil
	case FormatTar, FormatUnknown:
		return readCloser{Reader: r}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedCompression, format)
	}
}

// NewAutoReader sniffs the leading bytes of r and returns a reader that yields the
// decompressed stream together with the detected outer format.
func NewAutoReader(r io.Reader) (io.ReadCloser, Format, error) {
	br := bufio.NewReaderSize(r, HeaderSize)
	header, err := br.Peek(HeaderSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, FormatUnknown, err
	}
	format := DetectFormat(header)
	if format == FormatZlib || format == FormatZip {
		// Only stream formats are unwrapped here.
		format = FormatUnknown
	}
	rc, err := NewReader(br, format)
	if err != nil {
		return nil, format, err
	}
	return rc, format, nil
}

// Inflate decompresses a complete zlib stream
func Inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", errors.ErrCorruptArchive, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", errors.ErrCorruptArchive, err)
	}
	return out, nil
}

// Gunzip decompresses a complete gzip stream
func Gunzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", errors.ErrCorruptArchive, err)
	}
	defer gz.Close()

	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", errors.ErrCorruptArchive, err)
	}
	return out, nil
}
