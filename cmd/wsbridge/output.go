package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// OutputFormatter handles output in JSON or human-readable format.
type OutputFormatter struct {
	jsonMode bool
	out      io.Writer
	errOut   io.Writer
	colors   bool
}

// CommandResult pairs the JSON payload of a command with its human-readable
// rendering.
type CommandResult struct {
	Data          any
	HumanReadable func() error
}

// reportedError marks an error that was already written to stderr.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func isReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// newOutputFormatter creates a formatter based on the command's --json flag.
func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	return &OutputFormatter{
		jsonMode: jsonMode,
		out:      out,
		errOut:   cmd.ErrOrStderr(),
		colors:   !jsonMode && isTerminal(out),
	}
}

// Writer returns the stdout writer of the command.
func (f *OutputFormatter) Writer() io.Writer {
	return f.out
}

// Print writes data as indented JSON.
func (f *OutputFormatter) Print(data any) error {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(f.out, string(jsonBytes))
	return nil
}

// Render prints result.Data in JSON mode and calls result.HumanReadable
// otherwise.
func (f *OutputFormatter) Render(result CommandResult) error {
	if f.jsonMode || result.HumanReadable == nil {
		return f.Print(result.Data)
	}
	return result.HumanReadable()
}

// Success outputs a success message with optional extra fields.
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{"message": message}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Fprintln(f.out, message)
	return nil
}

// Error reports message and err on stderr and returns an error that main
// will not print a second time.
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]any{"error": message}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(f.errOut, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(f.errOut, "%s: %v\n", f.paint(color.FgRed, message), err)
	} else {
		fmt.Fprintln(f.errOut, f.paint(color.FgRed, message))
	}
	if err == nil {
		return reportedError{errors.New(message)}
	}
	return reportedError{fmt.Errorf("%s: %w", message, err)}
}

// paint colours s when writing to a terminal.
func (f *OutputFormatter) paint(attr color.Attribute, s string) string {
	if !f.colors {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
