package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/config"
	"github.com/deploymenttheory/go-backup-mapper/internal/detect"
)

// progressPrinter rewrites a single status line on w
func progressPrinter(w io.Writer) backup.ProgressFunc {
	return func(percent int, message string) error {
		fmt.Fprintf(w, "\r%s (%d%%)", message, percent)
		if percent >= 100 {
			fmt.Fprintln(w)
		}
		return nil
	}
}

// passwordPrompter asks for the backup password on w and reads one line from r
func passwordPrompter(r io.Reader, w io.Writer) backup.PasswordFunc {
	reader := bufio.NewReader(r)
	return func() (string, error) {
		fmt.Fprint(w, "Backup is encrypted. Enter password: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// openOptions builds the decoder and loader settings shared by compare and inspect
func openOptions(password string, quiet bool, in io.Reader, errOut io.Writer) detect.Options {
	opts := detect.Options{
		Decode: config.DecodeOptionsFromConfig(),
		Loader: config.LoaderOptionsFromConfig(),
	}
	opts.Decode.Password = password
	opts.Decode.PasswordFunc = passwordPrompter(in, errOut)
	if !quiet {
		opts.Decode.Progress = progressPrinter(errOut)
		opts.Loader.Progress = opts.Decode.Progress
	}
	return opts
}

func describeBackup(w io.Writer, b backup.Backup) {
	device := b.Device()
	files, dirs := backup.CountEntries(b.Entries())

	fmt.Fprintf(w, "  Type: %s\n", b.Kind())
	fmt.Fprintf(w, "  Platform: %s\n", b.Platform())
	fmt.Fprintf(w, "  Device: %s", device.Name)
	if device.ProductType != "" {
		fmt.Fprintf(w, " (%s)", device.ProductType)
	}
	fmt.Fprintln(w)
	if device.OSVersion != "" {
		fmt.Fprintf(w, "  OS Version: %s\n", device.OSVersion)
	}
	fmt.Fprintf(w, "  Encrypted: %t\n", device.Encrypted)
	fmt.Fprintf(w, "  Files: %d\n", files)
	fmt.Fprintf(w, "  Directories: %d\n", dirs)
}
