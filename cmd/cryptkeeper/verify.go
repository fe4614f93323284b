package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"example.com/cryptkeeper/pkg/atrest/envelope"
	"example.com/cryptkeeper/pkg/keyring"
	"example.com/cryptkeeper/pkg/secret"
	"example.com/cryptkeeper/pkg/secretmetrics"
	"example.com/cryptkeeper/pkg/util/perm"
)

func newVerifyCmd() *cobra.Command {
	var keyFile, ring string
	var stats bool
	cmd := &cobra.Command{
		Use:   "verify (--key <file> | --keyring <file>) <envelope>",
		Short: "Check that an envelope opens with a private key",
		Long: `Open an envelope with a private key, adopt it as a secret and use it
once. Only the kind and size of the value are reported. The key is given
with --key or found in a keyring by the envelope's key id; revoked keys are
refused. The key file must not be readable by group or others.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, keyFile, ring, args[0], stats)
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "private key file")
	cmd.Flags().StringVar(&ring, "keyring", "", "keyring file to find the key in")
	cmd.Flags().BoolVar(&stats, "stats", false, "print pool metrics after the check")
	cmd.MarkFlagsMutuallyExclusive("key", "keyring")
	cmd.MarkFlagsOneRequired("key", "keyring")
	return cmd
}

func runVerify(cmd *cobra.Command, keyFile, ring, envFile string, stats bool) error {
	logger := loggerFrom(cmd.Context())
	data, err := os.ReadFile(envFile)
	if err != nil {
		return err
	}
	env, err := envelope.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", envFile, err)
	}
	if ring != "" {
		k, err := keyring.Load(ring)
		if err != nil {
			return err
		}
		e, err := k.Lookup(env.Header.KeyID)
		if err != nil {
			return err
		}
		keyFile = e.Path
		logger.Debug("key found in keyring", "key_id", e.KeyID, "path", e.Path)
	}
	id, err := loadIdentity(keyFile)
	if err != nil {
		return err
	}
	defer id.Destroy()

	store, err := envelope.Open(env, id)
	if err != nil {
		return fmt.Errorf("opening %s: %w", envFile, err)
	}
	s, err := secret.FromProtectedValue(store, secret.WithLogger(logger), secret.WithPoolSize(1))
	if err != nil {
		return err
	}
	defer s.Dispose()

	collector := secretmetrics.New()
	collector.Register(envFile, s)
	defer collector.Unregister(envFile)

	var n int
	if err := s.UseBytes(func(b []byte) error {
		n = len(b)
		return nil
	}); err != nil {
		return fmt.Errorf("using %s: %w", envFile, err)
	}

	w := cmd.OutOrStdout()
	if s.IsText() {
		_, _ = fmt.Fprintf(w, "ok: text, %d code units, %d UTF-8 bytes\n", s.Size(), n)
	} else {
		_, _ = fmt.Fprintf(w, "ok: binary, %d bytes\n", s.Size())
	}
	if stats {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		return writeMetrics(w, reg)
	}
	return nil
}

func loadIdentity(keyFile string) (*envelope.Identity, error) {
	if err := perm.CheckPrivate(keyFile); err != nil {
		return nil, err
	}
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	id, err := envelope.ParseIdentity(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return id, nil
}

// writeMetrics prints every sample as name{labels} value.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)
			value := m.GetGauge().GetValue()
			if c := m.GetCounter(); c != nil {
				value = c.GetValue()
			}
			_, _ = fmt.Fprintf(w, "%s{%s} %g\n", f.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}
