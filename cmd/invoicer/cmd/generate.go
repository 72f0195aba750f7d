package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rental-invoice-engine/cmd/invoicer/config"
	"rental-invoice-engine/internal/carryover"
	"rental-invoice-engine/internal/invoice"
	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/internal/parsers"
	"rental-invoice-engine/internal/reconciler"
	"rental-invoice-engine/internal/refstore"
	"rental-invoice-engine/internal/reporter"
	apperrors "rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

// Flags for the generate command
var (
	primaryPayoutsFile   string
	reservationsFile     string
	rosterFile           string
	secondaryPayoutsFile string
	reportMonth          int
	reportYear           int
	outputDir            string
	carryFile            string
	counterFile          string

	seedInvoice int
	seedCheck   int
	seedJournal int

	checkPrefix       string
	journalPrefix     string
	trustAccount      string
	receivableAccount string
	clearingAccount   string
	primarySource     string
	secondarySource   string
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the monthly invoicing workbook",
	Long: `Generate reconciles one reporting month's payout and reservation logs
against the property roster and writes the accounting workbook plus any
per-group reservation workbooks.

This command requires:
- The primary-platform payout export (CSV or XLSX)
- The reservation log (CSV or XLSX)
- The roster workbook with Cleaning and Customer sheets (XLSX)

The secondary-platform payout log is optional; without it, carryover and
secondary income are simply empty for the month.

Examples:
  # Basic run
  invoicer generate --primary-payouts airbnb.csv --reservations reservations.csv \
    --roster Current.xlsx --month 6 --year 2026

  # With secondary platform and custom state files
  invoicer generate --primary-payouts airbnb.csv --reservations reservations.csv \
    --roster Current.xlsx --secondary-payouts vrbo.xlsx --month 6 --year 2026 \
    --carry-file state/carryover.csv --counter-file state/ref_numbers.txt

  # First run, seeding the reference counters
  invoicer generate --primary-payouts airbnb.csv --reservations reservations.csv \
    --roster Current.xlsx --month 6 --year 2026 \
    --seed-invoice 1000 --seed-check 1 --seed-journal 1`,

	PreRunE: validateGenerateFlags,
	RunE:    runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	accounts := invoice.DefaultConfig()

	// Required flags
	generateCmd.Flags().StringVarP(&primaryPayoutsFile, "primary-payouts", "p", "", "path to primary-platform payout export (required)")
	generateCmd.Flags().StringVarP(&reservationsFile, "reservations", "r", "", "path to reservation log (required)")
	generateCmd.Flags().StringVar(&rosterFile, "roster", "", "path to roster workbook with Cleaning and Customer sheets (required)")
	generateCmd.Flags().IntVarP(&reportMonth, "month", "m", 0, "reporting month 1-12 (required)")
	generateCmd.Flags().IntVarP(&reportYear, "year", "y", 0, "reporting year (required)")

	// Optional sources and destinations
	generateCmd.Flags().StringVarP(&secondaryPayoutsFile, "secondary-payouts", "s", "", "path to secondary-platform payout log (optional)")
	generateCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for generated workbooks")
	generateCmd.Flags().StringVar(&carryFile, "carry-file", "carryover.csv", "path to the cross-month payout ledger")
	generateCmd.Flags().StringVar(&counterFile, "counter-file", "ref_number_values.txt", "path to the reference counter file")

	// Counter seeds for the first run
	generateCmd.Flags().IntVar(&seedInvoice, "seed-invoice", 1, "starting invoice number when no counter file exists")
	generateCmd.Flags().IntVar(&seedCheck, "seed-check", 1, "starting check number when no counter file exists")
	generateCmd.Flags().IntVar(&seedJournal, "seed-journal", 1, "starting journal number when no counter file exists")

	// Account labels
	generateCmd.Flags().StringVar(&checkPrefix, "check-prefix", accounts.CheckRefPrefix, "reference prefix for trust checks")
	generateCmd.Flags().StringVar(&journalPrefix, "journal-prefix", accounts.JournalRefPrefix, "reference prefix for journal entries")
	generateCmd.Flags().StringVar(&trustAccount, "trust-account", accounts.TrustAccount, "trust bank account label")
	generateCmd.Flags().StringVar(&receivableAccount, "receivable-account", accounts.ReceivableAccount, "accounts receivable label")
	generateCmd.Flags().StringVar(&clearingAccount, "clearing-account", accounts.TrustClearingAccount, "trust clearing account label")
	generateCmd.Flags().StringVar(&primarySource, "primary-source", accounts.PrimarySource, "display name of the primary booking platform")
	generateCmd.Flags().StringVar(&secondarySource, "secondary-source", accounts.SecondarySource, "display name of the secondary booking platform")

	// Mark required flags
	generateCmd.MarkFlagRequired("primary-payouts")
	generateCmd.MarkFlagRequired("reservations")
	generateCmd.MarkFlagRequired("roster")
	generateCmd.MarkFlagRequired("month")
	generateCmd.MarkFlagRequired("year")

	// Bind flags to viper
	viper.BindPFlag("primary-payouts", generateCmd.Flags().Lookup("primary-payouts"))
	viper.BindPFlag("reservations", generateCmd.Flags().Lookup("reservations"))
	viper.BindPFlag("roster", generateCmd.Flags().Lookup("roster"))
	viper.BindPFlag("secondary-payouts", generateCmd.Flags().Lookup("secondary-payouts"))
	viper.BindPFlag("month", generateCmd.Flags().Lookup("month"))
	viper.BindPFlag("year", generateCmd.Flags().Lookup("year"))
	viper.BindPFlag("output-dir", generateCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("carry-file", generateCmd.Flags().Lookup("carry-file"))
	viper.BindPFlag("counter-file", generateCmd.Flags().Lookup("counter-file"))
	viper.BindPFlag("seed-invoice", generateCmd.Flags().Lookup("seed-invoice"))
	viper.BindPFlag("seed-check", generateCmd.Flags().Lookup("seed-check"))
	viper.BindPFlag("seed-journal", generateCmd.Flags().Lookup("seed-journal"))
	viper.BindPFlag("check-prefix", generateCmd.Flags().Lookup("check-prefix"))
	viper.BindPFlag("journal-prefix", generateCmd.Flags().Lookup("journal-prefix"))
	viper.BindPFlag("trust-account", generateCmd.Flags().Lookup("trust-account"))
	viper.BindPFlag("receivable-account", generateCmd.Flags().Lookup("receivable-account"))
	viper.BindPFlag("clearing-account", generateCmd.Flags().Lookup("clearing-account"))
	viper.BindPFlag("primary-source", generateCmd.Flags().Lookup("primary-source"))
	viper.BindPFlag("secondary-source", generateCmd.Flags().Lookup("secondary-source"))
}

func validateGenerateFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	primaryPayoutsFile = viper.GetString("primary-payouts")
	reservationsFile = viper.GetString("reservations")
	rosterFile = viper.GetString("roster")
	secondaryPayoutsFile = viper.GetString("secondary-payouts")
	reportMonth = viper.GetInt("month")
	reportYear = viper.GetInt("year")
	outputDir = viper.GetString("output-dir")
	carryFile = viper.GetString("carry-file")
	counterFile = viper.GetString("counter-file")
	seedInvoice = viper.GetInt("seed-invoice")
	seedCheck = viper.GetInt("seed-check")
	seedJournal = viper.GetInt("seed-journal")
	checkPrefix = viper.GetString("check-prefix")
	journalPrefix = viper.GetString("journal-prefix")
	trustAccount = viper.GetString("trust-account")
	receivableAccount = viper.GetString("receivable-account")
	clearingAccount = viper.GetString("clearing-account")
	primarySource = viper.GetString("primary-source")
	secondarySource = viper.GetString("secondary-source")

	period := models.Period{Month: reportMonth, Year: reportYear}
	if err := period.Validate(); err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "reporting month/year", err)
	}

	if err := validateFileExists(primaryPayoutsFile, "primary payout export"); err != nil {
		return err
	}
	if err := validateFileExists(reservationsFile, "reservation log"); err != nil {
		return err
	}
	if err := validateFileExists(rosterFile, "roster workbook"); err != nil {
		return err
	}
	if secondaryPayoutsFile != "" {
		if err := validateFileExists(secondaryPayoutsFile, "secondary payout log"); err != nil {
			return err
		}
	}

	if info, err := os.Stat(outputDir); err != nil || !info.IsDir() {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "output-dir",
			fmt.Errorf("output directory does not exist: %s", outputDir))
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("generate")
	period := models.Period{Month: reportMonth, Year: reportYear}

	log.WithFields(logger.Fields{
		"period":  period.String(),
		"primary": primaryPayoutsFile,
		"roster":  rosterFile,
	}).Info("Starting invoice generation")

	payouts, stats, err := parsers.ParsePayouts(primaryPayoutsFile, config.CreatePayoutParserConfig())
	if err != nil {
		return err
	}
	log.WithField("stats", stats.String()).Debug("Parsed primary payouts")

	reservations, stats, err := parsers.ParseReservations(reservationsFile, config.CreateReservationParserConfig())
	if err != nil {
		return err
	}
	log.WithField("stats", stats.String()).Debug("Parsed reservation log")

	listings, customers, stats, err := parsers.ParseRoster(rosterFile, config.CreateRosterParserConfig())
	if err != nil {
		return err
	}
	log.WithField("stats", stats.String()).Debug("Parsed roster workbook")

	var secondary []models.SecondaryPayoutRow
	if secondaryPayoutsFile != "" {
		secondary, stats, err = parsers.ParseSecondaryPayouts(secondaryPayoutsFile, config.CreateSecondaryParserConfig())
		if err != nil {
			return err
		}
		log.WithField("stats", stats.String()).Debug("Parsed secondary payouts")
	}

	carryStore := carryover.NewStore(carryFile)
	activeSecondary, remainingLedger, err := carryStore.Apply(period, secondary)
	if err != nil {
		return err
	}

	result := reconciler.Reconcile(period, reconciler.Inputs{
		Payouts:      payouts,
		Reservations: reservations,
		Secondary:    activeSecondary,
		Listings:     listings,
		Customers:    customers,
	})

	refStore := refstore.NewStore(counterFile, checkPrefix, journalPrefix)
	counters, err := refStore.Load(refstore.Seeds{
		Invoice: seedInvoice,
		Check:   seedCheck,
		Journal: seedJournal,
	})
	if err != nil {
		return err
	}

	output := invoice.Run(period, result.Units, &counters, invoice.Config{
		CheckRefPrefix:       checkPrefix,
		JournalRefPrefix:     journalPrefix,
		TrustAccount:         trustAccount,
		ReceivableAccount:    receivableAccount,
		TrustClearingAccount: clearingAccount,
		PrimarySource:        primarySource,
		SecondarySource:      secondarySource,
	})

	reportPath := filepath.Join(outputDir, fmt.Sprintf("Invoices %s %d.xlsx", period.MonthName(), period.Year))
	if err := reporter.WriteReport(reportPath, output, result); err != nil {
		return err
	}
	if err := reporter.WriteGroupWorkbooks(outputDir, period, result.Groups, primarySource, secondarySource); err != nil {
		return err
	}

	// State persists only after the workbooks are on disk: a failed run never
	// burns reference numbers or consumes carried payout rows.
	if err := carryStore.Save(remainingLedger); err != nil {
		return err
	}
	if err := refStore.Save(counters, period); err != nil {
		return err
	}

	log.WithField("report", reportPath).Info("Invoice generation complete")
	return nil
}
