package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and provides user-friendly messages, returning
// the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	// Log the error
	h.logger.WithError(err).Error("Command failed")

	if appErr, ok := errors.As(err); ok {
		return h.handleCategorizedError(appErr)
	}
	return h.handleGenericError(err)
}

// handleCategorizedError handles pipeline errors with detailed context
func (h *CLIErrorHandler) handleCategorizedError(err *errors.Error) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	// Show underlying error in verbose mode
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.ExitCode()
}

// handleGenericError handles errors that did not come through the pipeline
func (h *CLIErrorHandler) handleGenericError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if h.verbose {
		fmt.Fprintf(os.Stderr, "\nFor more details, check the logs or run with --verbose flag\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.Category) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have proper permissions to access the file`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV/XLSX file structure and column headers
• Check that the roster workbook has Cleaning and Customer sheets
• Ensure amounts are numbers (currency symbols are tolerated, text is not)
• Use 'invoicer generate --help' for the expected source files`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Verify the roster's Credit column only uses "CM" or blank
• Ensure the reporting month is 1-12 and the year is plausible`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'invoicer generate --help' to see all available options`

	case errors.CategoryState:
		return `State file error help:
• The carry ledger or counter file on disk is damaged
• Inspect the file by hand; both formats are plain text
• Delete the file to start fresh (counters will need seed values)`

	case errors.CategoryBilling:
		return `Billing error help:
• Check data quality in the roster and payout logs
• Review the diagnostic sheets of the last successful report
• Verify customer and listing names match across sources`

	default:
		return `For more help:
• Use 'invoicer --help' for general help
• Use 'invoicer generate --help' for command-specific help
• Report bugs or ask for help on the project repository`
	}
}

// HandleError routes an error through a fresh handler. Convenience for
// main().
func HandleError(err error) int {
	return NewCLIErrorHandler().HandleError(err)
}
