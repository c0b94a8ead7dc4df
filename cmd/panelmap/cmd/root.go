// Package cmd implements the panelmap command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	panelmap "github.com/genomicsops/panelmap"
	"github.com/genomicsops/panelmap/internal/config"
	"github.com/genomicsops/panelmap/internal/metrics"
	"github.com/genomicsops/panelmap/internal/sources/panelapp"
	"github.com/genomicsops/panelmap/internal/sources/variantvalidator"
	"github.com/genomicsops/panelmap/internal/store/sqlite"
	"github.com/genomicsops/panelmap/internal/transport"
	"github.com/genomicsops/panelmap/pkg/logging"
)

var (
	configFile string
	verbose    bool

	// Version information set by main.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "panelmap",
	Short: "Local gene panel replica and BED export tool",
	Long: `Panelmap keeps a local replica of versioned gene panels in sync with
the upstream catalog, tracks which panel version each patient was tested
against, and exports BED interval files from resolved transcript
coordinates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $HOME/.panelmap.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("database", "", "path of the SQLite database file")

	if err := viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database")); err != nil {
		panic(fmt.Sprintf("Failed to bind database flag: %v", err))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".panelmap")
	}

	// Load .env files first so viper's env binding sees them.
	loadEnvFiles()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	configureLogging()
}

// loadEnvFiles loads .env files from the working directory if present.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// configureLogging applies the verbose flag and config to the logger.
func configureLogging() {
	cfg := logging.DefaultConfig()
	if level := viper.GetString("log.level"); level != "" {
		cfg.Level = level
	}
	if format := viper.GetString("log.format"); format != "" {
		cfg.Format = format
	}
	if verbose {
		cfg.Level = "debug"
	}
	logging.Configure(cfg)
}

// newEngine constructs the engine and its dependencies from config. The
// caller owns the returned engine and must Close it.
func newEngine() (panelmap.Panelmap, *config.Config, *metrics.Metrics, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := sqlite.New(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	httpClient := transport.New(
		transport.WithTimeout(cfg.HTTPTimeout),
		transport.WithUserAgent("panelmap/"+Version),
	)
	m := metrics.New()

	engine, err := panelmap.New(
		panelmap.WithStore(store),
		panelmap.WithPanelSource(panelapp.New(
			panelapp.WithBaseURL(cfg.PanelAppURL),
			panelapp.WithTransport(httpClient),
		)),
		panelmap.WithTranscriptResolver(variantvalidator.New(
			variantvalidator.WithBaseURL(cfg.VariantValidatorURL),
			variantvalidator.WithTransport(httpClient),
		)),
		panelmap.WithMetrics(m),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	return engine, cfg, m, nil
}

// commandTimeout bounds one-shot CLI operations.
const commandTimeout = 5 * time.Minute
