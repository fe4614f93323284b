package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/cryptkeeper/pkg/atrest/envelope"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <envelope>",
		Short: "Print envelope metadata",
		Long:  `Print the clear-text header of an envelope. No key is needed.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			env, err := envelope.Parse(data)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			h := env.Header
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "version: %d\n", h.Version)
			_, _ = fmt.Fprintf(w, "created: %s\n", h.Created.Format(time.RFC3339))
			_, _ = fmt.Fprintf(w, "curve:   %s\n", h.Curve)
			_, _ = fmt.Fprintf(w, "key id:  %s\n", h.KeyID)
			if env.Binary() {
				_, _ = fmt.Fprintf(w, "kind:    binary, %d bytes\n", *h.Length)
			} else {
				_, _ = fmt.Fprintf(w, "kind:    text, %d code units\n", h.Units)
			}
			return nil
		},
	}
}
