package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/cryptkeeper/pkg/atrest/envelope"
	"example.com/cryptkeeper/pkg/crypto/kem/xkem"
	"example.com/cryptkeeper/pkg/keyring"
	"example.com/cryptkeeper/pkg/util/perm"
	"example.com/cryptkeeper/pkg/util/securemem"
)

func newKeygenCmd() *cobra.Command {
	var curveName, out, ring string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair",
		Long: `Generate an X25519 or X448 key pair. The public key is written to
<out>.pub with mode 0644 and the private key to <out>.key with mode 0600.
With --keyring the private key is also recorded under its key id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(cmd, curveName, out, ring)
		},
	}
	cmd.Flags().StringVar(&curveName, "curve", "x25519", "curve: x25519|x448")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path prefix")
	cmd.Flags().StringVar(&ring, "keyring", "", "keyring file to record the key in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runKeygen(cmd *cobra.Command, curveName, out, ring string) error {
	curve, err := xkem.ParseCurve(curveName)
	if err != nil {
		return err
	}
	id, err := envelope.GenerateIdentity(curve)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	defer id.Destroy()

	priv := id.Marshal()
	defer securemem.Wipe(priv)
	if err := perm.WritePrivate(out+".key", priv); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(out+".pub", id.Recipient().Marshal(), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	if ring != "" {
		if err := recordKey(ring, id.KeyID(), curve.String(), out+".key"); err != nil {
			return err
		}
	}
	loggerFrom(cmd.Context()).Debug("key pair written", "curve", curve.String(), "prefix", out)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s key %s\n", curve, id.KeyID())
	return nil
}

func recordKey(ring, keyID, curve, keyPath string) error {
	abs, err := filepath.Abs(keyPath)
	if err != nil {
		return err
	}
	k, err := keyring.Load(ring)
	if err != nil {
		return err
	}
	if err := k.Add(keyID, curve, abs); err != nil {
		return err
	}
	return k.Save(ring)
}
