package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
}

// keygenCmd creates the vault encryption key
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the vault encryption key",
	Long: `Generate a fresh vault encryption key.

The key is 32 random bytes written with 0600 permissions into the configured
data directory. keygen refuses to overwrite an existing key: replacing it
would make every vault record and receipt written under the old key
permanently unreadable.`,
	RunE: runKeygen,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	path := a.cfg.Data.KeyFile()
	if err := vault.GenerateKey(path); err != nil {
		return err
	}

	fmt.Printf("vault key written to %s\n", path)
	return nil
}
