package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/scrubd/internal/descrub"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
)

var (
	// descrub command flags
	dsActor         string
	dsRole          string
	dsTier          string
	dsIDs           []string
	dsReceipt       string
	dsVault         bool
	dsIn            string
	dsJSON          bool
	dsJustification string
)

func init() {
	rootCmd.AddCommand(descrubCmd)
	descrubCmd.Flags().StringVar(&dsActor, "actor", "", "Actor name recorded in the audit trail (required)")
	descrubCmd.Flags().StringVar(&dsRole, "role", "admin", "Actor role; must be in descrub.allowed_roles")
	descrubCmd.Flags().StringVar(&dsTier, "tier", "C4", "Actor clearance tier; entities above it are skipped")
	descrubCmd.Flags().StringSliceVar(&dsIDs, "ids", nil, "Restore only these identifiers (default: all the clearance permits)")
	descrubCmd.Flags().StringVar(&dsReceipt, "receipt", "", "Receipt file to read instead of resolving by operation ID")
	descrubCmd.Flags().BoolVar(&dsVault, "vault", false, "Restore through the vault records instead of the receipt entities")
	descrubCmd.Flags().StringVar(&dsIn, "in", "", "Scrubbed text to reconstruct ('-' for stdin; default: the receipt's own copy)")
	descrubCmd.Flags().BoolVar(&dsJSON, "json", false, "Output the full result as JSON")
	descrubCmd.Flags().StringVar(&dsJustification, "justification", "", "Reason for the restore, recorded in the audit trail")
	_ = descrubCmd.MarkFlagRequired("actor")
}

// descrubCmd restores original values for one operation
var descrubCmd = &cobra.Command{
	Use:   "descrub <operation-id>",
	Short: "Restore original values for a scrub operation",
	Long: `Restore the original values of a scrub operation.

The actor's role must be allowed to descrub at all, and each entity is only
restored when the actor's clearance tier covers it; the rest are skipped and
reported. Every attempt, allowed or denied, lands in the audit log.

By default the operation's receipt drives the restore. With --vault the
identifiers are resolved through the encrypted vault records instead, which
also works on scrubbed text that has been edited since the operation.

Examples:
  # Restore everything the clearance permits
  scrubd descrub 61d3c66e-9c3e-4d9e-8f2a-0c9a62d1c001 --actor jordan

  # Restore specific identifiers only
  scrubd descrub 61d3c66e-... --actor jordan --ids "C3::EMAIL::a1b2c3d4e5"

  # Record the reason in the audit trail
  scrubd descrub 61d3c66e-... --actor jordan --justification "chargeback dispute #4821"

  # Restore an edited copy through the vault
  scrubd descrub 61d3c66e-... --actor jordan --vault --in edited.txt

  # Act as a lower-clearance auditor
  scrubd descrub 61d3c66e-... --actor casey --role auditor --tier C2`,
	Args: cobra.ExactArgs(1),
	RunE: runDescrub,
}

func runDescrub(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	operationID := args[0]

	tier, err := policy.ParseTier(dsTier)
	if err != nil {
		return err
	}

	var text string
	switch {
	case dsIn == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		text = string(data)
	case dsIn != "":
		data, err := os.ReadFile(dsIn)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", dsIn, err)
		}
		text = string(data)
	}
	if dsVault && text == "" {
		return fmt.Errorf("--vault requires scrubbed text via --in")
	}

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	svc, err := a.descrubService()
	if err != nil {
		return err
	}

	req := &descrub.Request{
		OperationID: operationID,
		ReceiptRef:  dsReceipt,
		Text:        text,
		IDs:         dsIDs,
		Actor: descrub.Actor{
			Name: dsActor,
			Role: dsRole,
			Tier: tier,
		},
		Justification: dsJustification,
	}

	var result *descrub.Result
	if dsVault {
		result, err = svc.FromVault(ctx, req)
	} else {
		result, err = svc.FromReceipt(ctx, req)
	}
	if err != nil {
		if errors.Is(err, descrub.ErrDenied) || errors.Is(err, descrub.ErrRateLimited) {
			return err
		}
		return fmt.Errorf("descrub failed: %w", err)
	}

	if dsJSON {
		return outputJSON(result)
	}

	fmt.Print(result.Text)
	fmt.Fprintf(os.Stderr, "[scrubd] Operation %s: %d restored, %d skipped\n",
		result.OperationID, len(result.Restored), len(result.Skipped))
	for _, id := range result.Skipped {
		fmt.Fprintf(os.Stderr, "[scrubd]   skipped %s\n", id)
	}

	return nil
}
