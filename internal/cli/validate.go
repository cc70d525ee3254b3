package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/raycorr/internal/config"
	"github.com/roach88/raycorr/internal/harness"
)

// File kinds the validate command understands.
const (
	KindAuto     = "auto"
	KindScenario = "scenario"
	KindConfig   = "config"
)

// ValidationError is one file that failed validation.
type ValidationError struct {
	File    string `json:"file"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scenario and config files",
		Long: `Validate scenario files and engine configuration files without running them.

With --kind auto (the default) a YAML document with a steps or assertions key
is checked as a scenario and anything else as a configuration file.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", KindAuto, "file kind (auto|scenario|config)")

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	switch opts.Kind {
	case KindAuto, KindScenario, KindConfig:
	default:
		return outputValidateError(formatter, ErrCodeFailed, fmt.Sprintf("invalid kind %q", opts.Kind))
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return outputValidateError(formatter, ErrCodeFailed, fmt.Sprintf("cannot read %s: %v", file, err))
		}

		kind := opts.Kind
		if kind == KindAuto {
			kind = detectKind(data)
		}
		formatter.VerboseLog("Validating %s as %s", file, kind)

		if verr := validateFile(file, kind, data); verr != nil {
			result.Valid = false
			result.Errors = append(result.Errors, *verr)
		}
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// detectKind guesses whether data is a scenario or a config file.
func detectKind(data []byte) string {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return KindConfig
	}
	if _, ok := doc["steps"]; ok {
		return KindScenario
	}
	if _, ok := doc["assertions"]; ok {
		return KindScenario
	}
	return KindConfig
}

func validateFile(file, kind string, data []byte) *ValidationError {
	var err error
	code := ErrCodeConfig
	if kind == KindScenario {
		code = ErrCodeScenario
		_, err = harness.ParseScenario(data)
	} else {
		_, err = config.Parse(data, "")
	}
	if err == nil {
		return nil
	}
	return &ValidationError{File: file, Kind: kind, Code: code, Message: err.Error()}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d file(s) valid\n", result.Files)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Unreadable input is a command-level error (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every file that failed.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if err := formatter.Render("error", result, nil); err != nil {
			return err
		}
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range result.Errors {
		fmt.Fprintf(formatter.Writer, "%s (%s)\n", err.File, err.Kind)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
