package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"example.com/cryptkeeper/pkg/atrest/envelope"
	"example.com/cryptkeeper/pkg/codec"
	"example.com/cryptkeeper/pkg/secret"
	"example.com/cryptkeeper/pkg/util/securemem"
)

func newSealCmd() *cobra.Command {
	var pubFile, inFile, out string
	var binary bool
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal a secret to a public key",
		Long: `Seal a secret to a public key and print the armored envelope.

The secret is read from --in, or from the terminal with echo disabled, or
from stdin when it is not a terminal. One trailing newline is dropped from
text; binary input (--binary) is sealed byte for byte. Text secrets are
limited to 1024 UTF-16 code units and binary secrets to 2048 bytes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeal(cmd, pubFile, inFile, out, binary)
		},
	}
	cmd.Flags().StringVar(&pubFile, "pub", "", "recipient public key file")
	cmd.Flags().StringVar(&inFile, "in", "", "read the secret from this file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the envelope to this file (default: stdout)")
	cmd.Flags().BoolVar(&binary, "binary", false, "seal raw bytes instead of UTF-8 text")
	_ = cmd.MarkFlagRequired("pub")
	return cmd
}

func runSeal(cmd *cobra.Command, pubFile, inFile, out string, binary bool) error {
	pub, err := os.ReadFile(pubFile)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}
	recipient, err := envelope.ParseRecipient(pub)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}

	value, err := readSecret(cmd, inFile, binary)
	if err != nil {
		return err
	}
	defer securemem.Wipe(value)
	if err := checkSize(value, binary); err != nil {
		return err
	}

	var env *envelope.Envelope
	if binary {
		env, err = envelope.SealBytes(value, recipient)
	} else {
		env, err = envelope.SealText(value, recipient)
	}
	if err != nil {
		return fmt.Errorf("sealing: %w", err)
	}
	loggerFrom(cmd.Context()).Debug("sealed", "key_id", env.Header.KeyID, "units", env.Header.Units)

	if out == "" {
		_, err = cmd.OutOrStdout().Write(env.Armor())
		return err
	}
	return os.WriteFile(out, env.Armor(), 0o644)
}

// checkSize applies the limits FromBytes and FromText enforce, so an
// envelope is never sealed that the library would refuse to build directly.
func checkSize(value []byte, binary bool) error {
	if binary {
		if len(value) > secret.MaxBytes {
			return fmt.Errorf("%w: %d bytes, max %d", secret.ErrSizeExceeded, len(value), secret.MaxBytes)
		}
		return nil
	}
	if n := codec.UTF16Len(value); n > secret.MaxTextUnits {
		return fmt.Errorf("%w: %d code units, max %d", secret.ErrSizeExceeded, n, secret.MaxTextUnits)
	}
	return nil
}

// readSecret returns the secret as a heap slice the caller must wipe. Text
// loses one trailing line ending; binary input is returned unchanged.
func readSecret(cmd *cobra.Command, inFile string, binary bool) ([]byte, error) {
	var data []byte
	var err error
	switch {
	case inFile != "" && inFile != "-":
		data, err = os.ReadFile(inFile)
	case isTerminal(cmd.InOrStdin()):
		fd := int(cmd.InOrStdin().(*os.File).Fd())
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Secret: ")
		data, err = term.ReadPassword(fd)
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	default:
		data, err = readAll(cmd.InOrStdin())
	}
	if err != nil {
		securemem.Wipe(data)
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	if !binary {
		data = trimNewline(data)
	}
	if len(data) == 0 {
		return nil, errors.New("secret is empty")
	}
	return data, nil
}

func trimNewline(b []byte) []byte {
	b, ok := bytes.CutSuffix(b, []byte("\n"))
	if ok {
		b, _ = bytes.CutSuffix(b, []byte("\r"))
	}
	return b
}

// readAll is io.ReadAll that wipes every buffer it outgrows.
func readAll(r io.Reader) ([]byte, error) {
	b := make([]byte, 0, 512)
	for {
		n, err := r.Read(b[len(b):cap(b)])
		b = b[:len(b)+n]
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return b, err
		}
		if len(b) == cap(b) {
			grown := make([]byte, len(b), 2*cap(b))
			copy(grown, b)
			securemem.Wipe(b)
			b = grown
		}
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
