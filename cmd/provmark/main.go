package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/provmark/provmark/internal/config"
	"github.com/provmark/provmark/internal/logging"
)

var (
	// Version information (set by build)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// Global flags
	cfgFile string
	verbose bool

	// Set up by the root command before any subcommand runs
	appConfig *config.Config
	logger    = zap.NewNop()
)

// errNotVerified makes the process exit non-zero after the command already reported why.
var errNotVerified = errors.New("verification failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "provmark",
	Short: "Sign and watermark synthetic media",
	Long: `Provmark attaches verifiable provenance to generated images.

Features:
- RSA-PSS and ECDSA P-256 key pairs, optionally password protected
- Detached signature files (<image>.sig) covering pixels and metadata
- Invisible least-significant-bit watermarks carrying a traceability payload
- Batch verification with text, JSON or YAML reports`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		appConfig = cfg

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		l, err := logging.New(level, cfg.Log.Format)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Provmark version: %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "Git commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Build time: %s\n", buildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.provmark.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(watermarkCmd)
	rootCmd.AddCommand(versionCmd)

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig makes the environment visible to the global viper instance
func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
}

// loadConfiguration loads the application configuration
func loadConfiguration() (*config.Config, error) {
	configPath := viper.GetString("config")
	// Don't specify a default path, let config.Load handle it
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errNotVerified) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
