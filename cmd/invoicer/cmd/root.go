package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rental-invoice-engine/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "invoicer",
	Short: "Monthly rental invoicing and reconciliation tool",
	Long: `Invoicer reconciles short-term rental payout logs against a property
roster and generates the monthly accounting workbook: invoice line items,
hospitality tax summaries, and the trust path (credit memos, sales receipts,
checks, journal entries) for trust-accounting customers.

Examples:
  invoicer generate --primary-payouts airbnb.csv --reservations reservations.csv \
    --roster Current.xlsx --month 6 --year 2026
  invoicer generate --primary-payouts airbnb.csv --reservations reservations.csv \
    --roster Current.xlsx --secondary-payouts vrbo.xlsx --month 6 --year 2026 \
    --output-dir reports/
  invoicer version`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("INVOICER")
	viper.AutomaticEnv()

	logConfig := logger.DefaultConfig()
	if viper.GetBool("verbose") {
		logConfig.Level = "debug"
	}
	if l, err := logger.New(logConfig); err == nil {
		logger.SetGlobalLogger(l)
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
