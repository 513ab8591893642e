package filesystem

import (
	"path/filepath"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/spf13/afero"
)

// Defaults for LoaderOptions
const (
	DefaultPlatformDetectLimit = 5000
	DefaultProgressInterval    = 1000
)

// LoaderOptions configures a Loader
type LoaderOptions struct {
	Fs                  afero.Fs
	Progress            backup.ProgressFunc
	PlatformDetectLimit int
	ProgressInterval    int
	TempDir             string
}

// WithDefaults fills unset fields
func (o LoaderOptions) WithDefaults() LoaderOptions {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.PlatformDetectLimit <= 0 {
		o.PlatformDetectLimit = DefaultPlatformDetectLimit
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	return o
}

// Loader reads a filesystem acquisition from a tar (plain, gzip, bzip2 or xz), a zip or
// an extracted directory
type Loader struct {
	path string
	opts LoaderOptions
}

// NewLoader creates a loader for path
func NewLoader(path string, opts LoaderOptions) *Loader {
	return &Loader{path: path, opts: opts.WithDefaults()}
}

// Load enumerates the acquisition, detects its platform, builds the alias index and,
// for iOS, resolves container GUIDs. The returned acquisition keeps the source open
// for content reads until Close.
func (l *Loader) Load() (*Acquisition, error) {
	src, err := openSource(l.opts.Fs, l.path)
	if err != nil {
		return nil, err
	}
	acq, err := l.load(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return acq, nil
}

func (l *Loader) load(src source) (*Acquisition, error) {
	progress := l.opts.Progress
	if err := progress.Report(0, "Opening %s acquisition...", src.Format()); err != nil {
		return nil, err
	}

	var files []*File
	err := src.Scan(func(f *File, percent int) error {
		files = append(files, f)
		if len(files)%l.opts.ProgressInterval != 0 {
			return nil
		}
		return progress.Report(percent*80/100, "Reading %s: %d entries", src.Format(), len(files))
	})
	if err != nil {
		return nil, err
	}

	platform := DetectPlatform(files, l.opts.PlatformDetectLimit)
	if err := progress.Report(80, "Building file index..."); err != nil {
		return nil, err
	}
	acq := NewAcquisition(l.path, src.Format(), platform, files)
	acq.src = src

	if platform == backup.PlatformIOS {
		if err := progress.Report(85, "Extracting container mappings..."); err != nil {
			return nil, err
		}
		l.resolveContainers(acq)
	}

	fileCount, dirCount := acq.CountFiles()
	logger.LogInfo("Filesystem acquisition loaded", map[string]interface{}{
		"path":        l.path,
		"format":      acq.Format,
		"platform":    string(platform),
		"files":       fileCount,
		"directories": dirCount,
		"containers":  acq.Containers.Len(),
	})
	if err := progress.Report(100, "Loaded %d entries", len(files)); err != nil {
		return nil, err
	}
	return acq, nil
}

// resolveContainers reads every container metadata plist and applicationState.db in a
// single pass. Metadata plists win; the database only fills gaps. Unreadable inputs are
// logged and skipped.
func (l *Loader) resolveContainers(acq *Acquisition) {
	var paths []string
	var metadata []*File
	for _, f := range acq.Files {
		if f.IsDir || filepath.Base(f.Path) != ContainerMetadataFile {
			continue
		}
		if _, ok := containerTypeOf(f.Path); ok {
			metadata = append(metadata, f)
			paths = append(paths, f.Path)
		}
	}
	appState, hasAppState := acq.findSuffix(ApplicationStateDB)
	if hasAppState {
		paths = append(paths, appState.Path)
	}
	if len(paths) == 0 {
		return
	}

	contents, err := acq.readFiles(paths)
	if err != nil {
		logger.LogWarn("Could not read container metadata", map[string]interface{}{"error": err.Error()})
	}

	for _, f := range metadata {
		data, ok := contents[f.Path]
		if !ok || len(data) == 0 {
			continue
		}
		if err := acq.Containers.applyMetadata(f.Path, data); err != nil {
			logger.LogDebug("Unreadable container metadata", map[string]interface{}{"path": f.Path, "error": err.Error()})
		}
	}

	if hasAppState {
		if data := contents[appState.Path]; len(data) > 0 {
			if err := acq.Containers.applyApplicationState(data, l.opts.TempDir); err != nil {
				logger.LogWarn("Could not query applicationState.db", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	logger.LogDebug("Resolved containers", map[string]interface{}{"summary": acq.Containers.String()})
}

// IsAcquisition reports whether path looks like something Load can read
func IsAcquisition(fs afero.Fs, path string) bool {
	src, err := openSource(fs, path)
	if err != nil {
		return false
	}
	src.Close()
	return true
}
