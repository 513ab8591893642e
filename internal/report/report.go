// Package report renders mapping results as text, JSON or CSV.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/mapper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format selects the report layout
type Format string

const (
	FormatStats       Format = "stats"
	FormatDetailed    Format = "detailed"
	FormatDomains     Format = "domains"
	FormatJSON        Format = "json"
	FormatCSVUnmapped Format = "csv-unmapped"
	FormatCSVFSOnly   Format = "csv-fs-only"
	FormatCSVAll      Format = "csv-all"
)

// Formats lists every supported layout in help order
var Formats = []Format{
	FormatStats, FormatDetailed, FormatDomains, FormatJSON,
	FormatCSVUnmapped, FormatCSVFSOnly, FormatCSVAll,
}

// DefaultListLimit caps the file lists of the detailed report
const DefaultListLimit = 100

// containerListLimit caps the GUID listings of the domains report
const containerListLimit = 20

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(name) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown output format %q (want one of %s)", errors.ErrConfigInvalid, name, FormatNames())
}

// FormatNames returns the supported formats joined for help text
func FormatNames() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Report is the input of every renderer. MapAll must have run on Mapper.
type Report struct {
	Mapper    *mapper.Mapper
	ListLimit int
	// Hashes holds the verification results, nil when no check ran
	Hashes []mapper.HashResult
}

// Write renders r in format to w
func Write(w io.Writer, format Format, r Report) error {
	if r.ListLimit <= 0 {
		r.ListLimit = DefaultListLimit
	}
	switch format {
	case FormatStats:
		return writeText(w, r, false)
	case FormatDetailed:
		return writeText(w, r, true)
	case FormatDomains:
		return writeDomains(w, r)
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSVUnmapped:
		return writeCSVUnmapped(w, r)
	case FormatCSVFSOnly:
		return writeCSVFilesystemOnly(w, r)
	case FormatCSVAll:
		return writeCSVAll(w, r)
	}
	return fmt.Errorf("%w: unknown output format %q", errors.ErrConfigInvalid, format)
}

// textWriter prints with thousands separators and keeps the first write error
type textWriter struct {
	w   io.Writer
	p   *message.Printer
	err error
}

func newTextWriter(w io.Writer) *textWriter {
	return &textWriter{w: w, p: message.NewPrinter(language.English)}
}

func (t *textWriter) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = t.p.Fprintf(t.w, format, args...)
}

func (t *textWriter) rule(char string) {
	t.printf("%s\n", strings.Repeat(char, 60))
}

func (t *textWriter) banner(title string) {
	t.printf("\n")
	t.rule("=")
	t.printf("%s\n", title)
	t.rule("=")
}
