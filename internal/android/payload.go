package android

import (
	"bufio"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	compression "github.com/deploymenttheory/go-backup-mapper/internal/common/compressionutil"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
)

// Payload is a decoded .ab stream: its header and the indexed tar it carried
type Payload struct {
	Header *Header
	Tar    *backup.TarArchive
}

// OpenPayload parses the header, decrypts and inflates the payload and indexes the tar.
// lookups are consulted for a password after opts.Password and before opts.PasswordFunc.
func OpenPayload(r io.Reader, opts backup.DecodeOptions, lookups ...backup.PasswordLookup) (*Payload, error) {
	if err := opts.Progress.Report(0, "Reading Android backup header..."); err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	header, err := ParseHeader(br)
	if err != nil {
		return nil, err
	}
	logger.LogDebug("Parsed Android backup header", map[string]interface{}{
		"format_version": header.FormatVersion,
		"compressed":     header.Compressed,
		"encryption":     header.Encryption,
	})

	var password string
	if header.Encrypted() {
		if err := opts.Progress.Report(5, "Backup is encrypted, finding password..."); err != nil {
			return nil, err
		}
		if password, err = backup.ResolvePassword(opts, lookups...); err != nil {
			return nil, err
		}
	}

	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read payload: %v", errors.ErrCorruptArchive, err)
	}

	if header.Encrypted() {
		if err := opts.Progress.Report(10, "Decrypting backup..."); err != nil {
			return nil, err
		}
		if raw, err = DecryptPayload(header, password, raw); err != nil {
			return nil, err
		}
	}

	if header.Compressed {
		if err := opts.Progress.Report(20, "Decompressing backup data..."); err != nil {
			return nil, err
		}
		if raw, err = compression.Inflate(raw); err != nil {
			return nil, err
		}
	}

	if err := opts.Progress.Report(30, "Parsing tar archive..."); err != nil {
		return nil, err
	}
	archive, err := backup.NewTarArchive(raw)
	if err != nil {
		return nil, err
	}
	logger.LogDebug("Indexed backup tar", map[string]interface{}{"members": archive.Len()})

	return &Payload{Header: header, Tar: archive}, nil
}
