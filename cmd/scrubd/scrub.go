package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/scrub"
)

var (
	// scrub command flags
	scrubTier string
	scrubOut  bool
	scrubJSON bool
)

func init() {
	rootCmd.AddCommand(scrubCmd)
	scrubCmd.Flags().StringVar(&scrubTier, "tier", "C3",
		"Clearance tier recorded for the operation; labels outside the policy table take this tier")
	scrubCmd.Flags().BoolVar(&scrubOut, "out", false,
		"Write the scrubbed text next to the input as <name>.scrubbed<ext> instead of stdout")
	scrubCmd.Flags().BoolVar(&scrubJSON, "json", false, "Output the full result as JSON")
}

// scrubCmd de-identifies a file or stdin
var scrubCmd = &cobra.Command{
	Use:   "scrub [file]",
	Short: "De-identify a file or stdin",
	Long: `De-identify sensitive values in a file or stdin.

Detected values are replaced with stable identifiers of the form
{TIER}::{LABEL}::{hash}. The originals are encrypted into the vault, a
receipt is written, and the operation is appended to the audit log. The
scrubbed text goes to stdout; the operation summary goes to stderr.

Examples:
  # Scrub a file
  scrubd scrub report.txt

  # Scrub from stdin
  cat transcript.log | scrubd scrub -

  # Scrub under a stricter fallback tier
  scrubd scrub --tier C4 report.txt

  # Write report.scrubbed.txt next to the input
  scrubd scrub --out report.txt

  # Full result with entities as JSON
  scrubd scrub --json report.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScrub,
}

func runScrub(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var text []byte
	var filename string
	var err error

	// Read input from file or stdin
	if len(args) == 0 || args[0] == "-" {
		text, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		filename = args[0]
		text, err = os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", filename, err)
		}
	}

	if len(text) == 0 {
		return fmt.Errorf("no content to scrub")
	}
	if scrubOut && filename == "" {
		return fmt.Errorf("--out requires a file input")
	}

	tier, err := policy.ParseTier(scrubTier)
	if err != nil {
		return err
	}

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	svc, err := a.scrubService(ctx)
	if err != nil {
		return err
	}

	result, err := svc.Scrub(ctx, &scrub.Request{
		Text:     string(text),
		Tier:     tier,
		Filename: filename,
	})
	if err != nil {
		return fmt.Errorf("scrub failed: %w", err)
	}

	if scrubJSON {
		return outputJSON(result)
	}

	if scrubOut {
		outPath := scrubbedPath(filename)
		if err := os.WriteFile(outPath, []byte(result.ScrubbedText), 0o600); err != nil {
			return fmt.Errorf("failed to write scrubbed file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "[scrubd] Wrote %s\n", outPath)
	} else {
		fmt.Print(result.ScrubbedText)
	}

	fmt.Fprintf(os.Stderr, "[scrubd] Operation %s: %d entities replaced; receipt at %s\n",
		result.OperationID, len(result.Entities), result.ReceiptPath)

	return nil
}

// scrubbedPath derives the output name: report.txt -> report.scrubbed.txt.
func scrubbedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".scrubbed" + ext
}
