package backup

import (
	"fmt"
	"sort"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
)

// DeviceInfo describes the device a backup was taken from
type DeviceInfo struct {
	Name          string
	ProductType   string
	OSVersion     string
	Serial        string
	UDID          string
	Encrypted     bool
	Zipped        bool
	FormatVersion int
}

// Backup is the read-only view of a decoded container consumed by the mappers and reports
type Backup interface {
	Path() string
	Kind() Kind
	Platform() Platform
	Device() DeviceInfo
	Entries() []*Entry
	ManifestRowCount() int
	Log() *ParsingLog
	ReadContent(e *Entry) ([]byte, error)
	Close() error
}

// Container is the concrete Backup built by every decoder. A decoder populates it
// from a single goroutine through AddEntry and friends, then hands it out read-only.
// It holds no locks; concurrent mutation is not supported.
type Container struct {
	path     string
	kind     Kind
	platform Platform
	format   string
	device   DeviceInfo
	entries  []*Entry
	rowCount int
	log      *ParsingLog
	reader   ContentReader
	seen     map[string]struct{}
}

var _ Backup = (*Container)(nil)

// NewContainer creates an empty container for the file or directory at path
func NewContainer(path string, kind Kind, platform Platform) *Container {
	return &Container{
		path:     path,
		kind:     kind,
		platform: platform,
		log:      NewParsingLog(),
		seen:     make(map[string]struct{}),
	}
}

// Path returns the file or directory the container was decoded from
func (c *Container) Path() string {
	return c.path
}

// Kind returns the container format
func (c *Container) Kind() Kind {
	return c.kind
}

// Platform returns the source platform
func (c *Container) Platform() Platform {
	return c.platform
}

// Log returns the parsing log
func (c *Container) Log() *ParsingLog {
	return c.log
}

// Format describes the physical layout, such as "directory", "zip" or "ab"
func (c *Container) Format() string {
	return c.format
}

// SetFormat records the physical layout
func (c *Container) SetFormat(format string) {
	c.format = format
}

// Device returns the device metadata
func (c *Container) Device() DeviceInfo {
	return c.device
}

// SetDevice replaces the device metadata
func (c *Container) SetDevice(d DeviceInfo) {
	c.device = d
}

// UpdateDevice edits the device metadata in place
func (c *Container) UpdateDevice(fn func(d *DeviceInfo)) {
	fn(&c.device)
}

// Entries returns the decoded entries in decode order
func (c *Container) Entries() []*Entry {
	return c.entries
}

// ManifestRowCount is the number of rows or members considered during decode
func (c *Container) ManifestRowCount() int {
	return c.rowCount
}

// SetRowCount records the number of rows or members considered during decode
func (c *Container) SetRowCount(n int) {
	c.rowCount = n
	c.log.TotalRows = n
}

// SetReader attaches the content reader used by ReadContent
func (c *Container) SetReader(r ContentReader) {
	c.reader = r
}

// AddEntry appends an entry and logs it as an added file or directory
func (c *Container) AddEntry(e *Entry, details string) {
	c.entries = append(c.entries, e)
	c.seen[e.FullDomainPath()] = struct{}{}

	if e.IsDirectory() {
		c.log.Add(e.FileID, e.Domain, e.RelativePath, StatusAddedDirectory, details, 0)
		return
	}
	c.log.Add(e.FileID, e.Domain, e.RelativePath, StatusAddedFile, details, e.Size)
}

// Skip logs a row that produced no entry
func (c *Container) Skip(fileID, domain, relativePath, details string) {
	c.log.Add(fileID, domain, relativePath, StatusSkippedNoContent, details, 0)
}

// LogError logs a row that failed to decode
func (c *Container) LogError(fileID, domain, relativePath, details string) {
	c.log.Add(fileID, domain, relativePath, StatusError, details, 0)
}

// HasDomainPath reports whether an entry with this domain/relative_path was added
func (c *Container) HasDomainPath(fullPath string) bool {
	_, ok := c.seen[fullPath]
	return ok
}

// FilesByDomain groups the entries by domain
func (c *Container) FilesByDomain() map[string][]*Entry {
	return GroupByDomain(c.Entries())
}

// CountFiles returns the number of non-directory and directory entries
func (c *Container) CountFiles() (files, dirs int) {
	return CountEntries(c.Entries())
}

// ReadContent returns the bytes behind e. Directories and entries without a source
// return ErrNotRegularFile.
func (c *Container) ReadContent(e *Entry) ([]byte, error) {
	if e.IsDirectory() {
		return nil, fmt.Errorf("%w: %s is a directory", errors.ErrNotRegularFile, e.FullDomainPath())
	}
	if c.reader == nil || e.Source.Kind == SourceNone {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotRegularFile, e.FullDomainPath())
	}
	return c.reader.ReadContent(e)
}

// Close releases the content reader
func (c *Container) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// GroupByDomain groups entries by domain
func GroupByDomain(entries []*Entry) map[string][]*Entry {
	out := make(map[string][]*Entry)
	for _, e := range entries {
		out[e.Domain] = append(out[e.Domain], e)
	}
	return out
}

// CountEntries returns the number of non-directory and directory entries
func CountEntries(entries []*Entry) (files, dirs int) {
	for _, e := range entries {
		if e.IsDirectory() {
			dirs++
		} else {
			files++
		}
	}
	return files, dirs
}

// SortedDomains returns the keys of a domain grouping in lexical order
func SortedDomains(groups map[string][]*Entry) []string {
	domains := make([]string, 0, len(groups))
	for d := range groups {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
