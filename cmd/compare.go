package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-backup-mapper/internal/config"
	"github.com/deploymenttheory/go-backup-mapper/internal/detect"
	"github.com/deploymenttheory/go-backup-mapper/internal/filesystem"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/deploymenttheory/go-backup-mapper/internal/mapper"
	"github.com/deploymenttheory/go-backup-mapper/internal/report"
	"github.com/spf13/cobra"
)

var (
	compareOutput   string
	comparePassword string
	compareQuiet    bool
	compareVerify   bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <backup> <filesystem>",
	Short: "Map a backup onto a filesystem acquisition and report coverage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(compareOutput)
		if err != nil {
			return err
		}
		errOut := cmd.ErrOrStderr()
		opts := openOptions(comparePassword, compareQuiet, cmd.InOrStdin(), errOut)

		fmt.Fprintf(errOut, "Loading backup from: %s\n", args[0])
		b, err := detect.Open(args[0], opts)
		if err != nil {
			return fmt.Errorf("loading backup: %w", err)
		}
		defer b.Close()
		describeBackup(errOut, b)

		fmt.Fprintf(errOut, "\nLoading filesystem from: %s\n", args[1])
		acq, err := filesystem.NewLoader(args[1], opts.Loader).Load()
		if err != nil {
			return fmt.Errorf("loading filesystem: %w", err)
		}
		defer acq.Close()
		fmt.Fprintf(errOut, "  Files: %d\n", len(acq.Files))
		fmt.Fprintf(errOut, "  Container mappings: %d apps, %d groups\n",
			len(acq.Containers.Mapping(filesystem.ContainerApp)),
			len(acq.Containers.Mapping(filesystem.ContainerGroup)))

		fmt.Fprintln(errOut, "\nMapping paths...")
		m := mapper.New(b, acq)
		m.MapAll()

		r := report.Report{Mapper: m, ListLimit: config.Instance.Report.ListLimit}
		if compareVerify {
			hasher, err := config.HasherFromConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(errOut, "Verifying %s hashes...\n", hasher.Algorithm())
			r.Hashes = m.VerifyHashes(hasher)
		}
		fmt.Fprintln(errOut, "  Done.")

		logger.LogDebug("Comparison finished", map[string]interface{}{
			"backup":     args[0],
			"filesystem": args[1],
			"coverage":   m.Statistics().CoveragePercent,
		})
		return report.Write(cmd.OutOrStdout(), format, r)
	},
}

func init() {
	compareCmd.Flags().StringVarP(&compareOutput, "output", "o", string(report.FormatStats), "Report format: "+report.FormatNames())
	compareCmd.Flags().StringVarP(&comparePassword, "password", "p", "", "Backup password")
	compareCmd.Flags().BoolVarP(&compareQuiet, "quiet", "q", false, "Suppress progress output")
	compareCmd.Flags().BoolVar(&compareVerify, "verify-hashes", false, "Compare content hashes of mapped files")
}
