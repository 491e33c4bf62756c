package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/postcraft-hq/postcraft/csrf"
	"github.com/postcraft-hq/postcraft/internal/util"
)

var csrfSecretCmd = &cobra.Command{
	Use:   "csrf-secret",
	Short: "Print a new random CSRF secret",
	Long: `Print a new random secret suitable for POSTCRAFT_CSRF_SECRET.

Changing the secret of a running deployment invalidates every token issued
under the old one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := util.RandomBytes(csrf.MinSecretLength)
		if err != nil {
			return err
		}
		defer util.WipeBytes(b)
		fmt.Fprintln(cmd.OutOrStdout(), util.HexEncode(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(csrfSecretCmd)
}
