// Package detect picks the decoder for a backup path and decodes it.
package detect

import (
	stderrors "errors"
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/android"
	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/ios"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/deploymenttheory/go-backup-mapper/internal/magnet"
	"github.com/deploymenttheory/go-backup-mapper/internal/ufed"
)

// Decoder is implemented by every container decoder
type Decoder interface {
	Detect() bool
	Decode() (*backup.Container, error)
}

// Options carries the settings handed to the decoders and, for the filesystem
// fallback, to the acquisition loader
type Options struct {
	Decode backup.DecodeOptions
	Loader filesystem.LoaderOptions
}

type candidate struct {
	kind backup.Kind
	new  func(path string, opts backup.DecodeOptions) Decoder
}

// candidates are tried in order
var candidates = []candidate{
	{backup.KindIOS, func(p string, o backup.DecodeOptions) Decoder { return ios.NewDecoder(p, o) }},
	{backup.KindAndroid, func(p string, o backup.DecodeOptions) Decoder { return android.NewDecoder(p, o) }},
	{backup.KindUFED, func(p string, o backup.DecodeOptions) Decoder { return ufed.NewDecoder(p, o) }},
	{backup.KindMagnet, func(p string, o backup.DecodeOptions) Decoder { return magnet.NewDecoder(p, o) }},
}

func (o Options) withDefaults() Options {
	o.Decode = o.Decode.WithDefaults()
	if o.Loader.Fs == nil {
		o.Loader.Fs = o.Decode.Fs
	}
	if o.Loader.Progress == nil {
		o.Loader.Progress = o.Decode.Progress
	}
	if o.Loader.TempDir == "" {
		o.Loader.TempDir = o.Decode.TempDir
	}
	return o
}

// Kind reports which decoder would handle path without decoding it
func Kind(path string, opts Options) (backup.Kind, bool) {
	opts = opts.withDefaults()
	for _, c := range candidates {
		if c.new(path, opts.Decode).Detect() {
			return c.kind, true
		}
	}
	if filesystem.IsAcquisition(opts.Loader.Fs, path) {
		return backup.KindFilesystem, true
	}
	return "", false
}

// Open decodes path with the first decoder that recognizes it. A decoder that
// rejects the input with ErrFormat hands over to the next one. Anything that is
// still readable as a filesystem acquisition is presented as a backup.
func Open(path string, opts Options) (backup.Backup, error) {
	opts = opts.withDefaults()

	for _, c := range candidates {
		dec := c.new(path, opts.Decode)
		if !dec.Detect() {
			continue
		}
		logger.LogDebug("Backup format detected", map[string]interface{}{
			"path": path,
			"kind": string(c.kind),
		})
		container, err := dec.Decode()
		if err == nil {
			return container, nil
		}
		if !stderrors.Is(err, errors.ErrFormat) {
			return nil, err
		}
		logger.LogDebug("Decoder rejected input", map[string]interface{}{
			"kind":  string(c.kind),
			"error": err.Error(),
		})
	}

	if filesystem.IsAcquisition(opts.Loader.Fs, path) {
		acq, err := filesystem.NewLoader(path, opts.Loader).Load()
		if err != nil {
			return nil, err
		}
		return filesystem.AsBackup(acq), nil
	}
	return nil, fmt.Errorf("%w: %s is not a recognized backup or filesystem acquisition", errors.ErrFormat, path)
}
