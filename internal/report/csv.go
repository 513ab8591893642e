package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/deploymenttheory/go-backup-mapper/internal/mapper"
)

func writeCSV(w io.Writer, header []string, rows func(add func(record ...string))) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	var err error
	rows(func(record ...string) {
		if err == nil {
			err = cw.Write(record)
		}
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVUnmapped(w io.Writer, r Report) error {
	header := []string{"domain", "relative_path", "file_size", "status", "notes"}
	return writeCSV(w, header, func(add func(...string)) {
		for _, m := range r.Mapper.Mappings() {
			if !m.Unmapped() {
				continue
			}
			add(m.Entry.Domain, m.Entry.RelativePath, size(m), m.Status.String(), m.Notes)
		}
	})
}

func writeCSVFilesystemOnly(w io.Writer, r Report) error {
	header := []string{"path", "size", "is_directory"}
	return writeCSV(w, header, func(add func(...string)) {
		for _, f := range r.Mapper.FilesystemOnlyEntries() {
			add(f.Path, strconv.FormatInt(f.Size, 10), strconv.FormatBool(f.IsDir))
		}
	})
}

func writeCSVAll(w io.Writer, r Report) error {
	header := []string{"domain", "relative_path", "filesystem_path", "status", "file_size", "notes"}
	return writeCSV(w, header, func(add func(...string)) {
		for _, m := range r.Mapper.Mappings() {
			add(m.Entry.Domain, m.Entry.RelativePath, m.FilesystemPath, m.Status.String(), size(m), m.Notes)
		}
	})
}

func size(m *mapper.Mapping) string {
	return strconv.FormatInt(m.Entry.Size, 10)
}
