// Package compressiontest produces compressed streams for tests
package compressiontest

import (
	"bytes"
	"fmt"
	"io"

	compression "github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz"
)

// Compress encodes data with the given stream format
func Compress(data []byte, format compression.Format) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error

	switch format {
	case compression.FormatZlib:
		w = zlib.NewWriter(&buf)
	case compression.FormatGzip:
		w = gzip.NewWriter(&buf)
	case compression.FormatBzip2:
		w, err = bzip2.NewWriter(&buf, nil)
	case compression.FormatXz:
		w, err = xz.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("cannot compress with format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", format, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish %s stream: %w", format, err)
	}
	return buf.Bytes(), nil
}
