package cmd

import (
	"github.com/deploymenttheory/go-backup-mapper/internal/config"
	"github.com/deploymenttheory/go-backup-mapper/internal/logger"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "backup-mapper",
	Short: "Compare device backups against full filesystem acquisitions",
	Long: `backup-mapper decodes iOS, Android (.ab), ALEX/UFED and Magnet Quick Image
backups, predicts where every backed-up file lives on the device and checks the
prediction against a filesystem acquisition (tar, tar.gz, tar.bz2, tar.xz, zip or
directory). The result shows how much of the device a logical backup captures.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// If config file was explicitly specified via flag, reload it
		if cmd.Flags().Changed("config") && cfgFile != "" {
			if err := config.Initialize(cfgFile); err != nil {
				logger.LogError("Error loading config file", err, map[string]interface{}{
					"config_file": cfgFile,
				})
			}
		}

		if v := config.Viper(); v != nil {
			v.BindPFlag("debug", cmd.Flags().Lookup("debug"))
			v.BindPFlag("log_format", cmd.Flags().Lookup("log-format"))
			if err := config.Refresh(); err != nil {
				return err
			}
		}

		if cmd.Flags().Changed("debug") || cmd.Flags().Changed("log-format") {
			return logger.InitLogger(logger.LoggerConfig{
				Debug:     config.Instance.Debug,
				LogFormat: config.Instance.LogFormat,
				LogFile:   config.Instance.LogFile,
			})
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.LogError("Command execution failed", err, nil)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")

	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}
