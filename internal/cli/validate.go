package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/meltshop/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Plant    string            `json:"plant,omitempty"`
	Shops    int               `json:"shops,omitempty"`
	Machines int               `json:"machines,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one problem found in a plant file.
type ValidationError struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plant-file>",
		Short: "Validate a plant file",
		Long: `Decode and validate a YAML or CUE plant file without starting anything.

Reports every naming problem at once: missing names, duplicate machines,
duplicate sensor keys and unparsable monitor intervals.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, err := config.Load(path)
	if err != nil {
		if !config.IsInvalid(err) {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot load plant file", err)
		}
		return outputValidationErrors(formatter, validationErrors(err))
	}

	formatter.VerboseLog("Validated %s", path)
	result := ValidationResult{
		Valid:    true,
		Plant:    p.Name,
		Shops:    len(p.Shops),
		Machines: len(p.Machines()),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Plant %s valid (%d shops, %d machines)\n", result.Plant, result.Shops, result.Machines)
	return nil
}

// validationErrors flattens a joined validation error into its parts.
func validationErrors(err error) []ValidationError {
	var parts []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		parts = joined.Unwrap()
	} else {
		parts = []error{err}
	}

	out := make([]ValidationError, 0, len(parts))
	for _, part := range parts {
		var ce *config.Error
		if errors.As(part, &ce) {
			out = append(out, ValidationError{Code: ce.Code, Path: ce.Path, Message: ce.Message})
			continue
		}
		out = append(out, ValidationError{Code: ErrCodeConfig, Message: part.Error()})
	}
	return out
}

func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Path != "" {
			fmt.Fprintf(formatter.Writer, "%s\n", e.Path)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return failure
}
