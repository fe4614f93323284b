// Command cryptkeeper provisions envelopes that a service later adopts with
// secret.FromProtectedValue.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Wipe locked memory if the process is interrupted.
	memguard.CatchInterrupt()
	err := newRootCmd().Execute()
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "cryptkeeper",
		Short: "Seal secrets to a key and check sealed envelopes",
		Long: `cryptkeeper generates X25519/X448 keys, seals secrets into envelopes
encrypted with AES-256-OCB, and verifies that an envelope opens with a key.

Secret values are never printed. verify reports only the kind and size of
the sealed value.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), verbose)))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug events to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newSealCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newRevokeCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of cryptkeeper",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cryptkeeper %s\n", version)
		},
	}
}

// newLogger writes text logs to a terminal and JSON logs otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
