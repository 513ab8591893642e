package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/backup"
	"github.com/deploymenttheory/go-backup-mapper/internal/detect"
	"github.com/spf13/cobra"
)

var (
	inspectPassword string
	inspectQuiet    bool
	inspectLog      bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <backup>",
	Short: "Decode a backup and print its device information and parsing log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		opts := openOptions(inspectPassword, inspectQuiet, cmd.InOrStdin(), cmd.ErrOrStderr())

		b, err := detect.Open(args[0], opts)
		if err != nil {
			return err
		}
		defer b.Close()

		fmt.Fprintf(out, "Backup: %s\n", b.Path())
		describeBackup(out, b)
		fmt.Fprintf(out, "  Manifest rows: %d\n", b.ManifestRowCount())

		if inspectLog {
			fmt.Fprintln(out)
			fmt.Fprint(out, b.Log().Text())
			return nil
		}
		writeLogSummary(cmd, b.Log())
		return nil
	},
}

func writeLogSummary(cmd *cobra.Command, log *backup.ParsingLog) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nParsing log:")
	fmt.Fprintf(out, "  Files added: %d\n", log.FilesAdded)
	fmt.Fprintf(out, "  Directories added: %d\n", log.DirectoriesAdded)
	fmt.Fprintf(out, "  Skipped (no content): %d\n", log.SkippedNoContent)
	fmt.Fprintf(out, "  Errors: %d\n", log.Errors)
	fmt.Fprintf(out, "  Size mismatches: %d\n", log.SizeMismatches)
	fmt.Fprintf(out, "  Declared size zero: %d\n", log.DeclaredSizeZero)
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectPassword, "password", "p", "", "Backup password")
	inspectCmd.Flags().BoolVarP(&inspectQuiet, "quiet", "q", false, "Suppress progress output")
	inspectCmd.Flags().BoolVar(&inspectLog, "log", false, "Print the full parsing log")
}
