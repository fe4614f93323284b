package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/cryptkeeper/pkg/keyring"
)

func newRevokeCmd() *cobra.Command {
	var ring string
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Mark a key in a keyring as revoked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := keyring.Load(ring)
			if err != nil {
				return err
			}
			if err := k.Revoke(args[0]); err != nil {
				return err
			}
			if err := k.Save(ring); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&ring, "keyring", "", "keyring file")
	_ = cmd.MarkFlagRequired("keyring")
	return cmd
}
