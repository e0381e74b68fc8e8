package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bucketetl/internal/config"
	"bucketetl/internal/probe"
	"bucketetl/internal/schema"
)

func newProbeCmd() *cobra.Command {
	var (
		cfgPath  string
		key      string
		maxBytes int
		name     string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Infer a schema contract from the head of one object",
		Long: "Samples the start of --key from the configured bucket and prints a `schema:` block\n" +
			"that can be pasted into a pipeline config.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			store, err := openStore(p.Source)
			if err != nil {
				return err
			}
			csvOpt, err := p.CSVOptions()
			if err != nil {
				return err
			}
			if name == "" {
				name = p.Schema.Name
			}
			res, err := probe.Probe(cmd.Context(), store, key, probe.Options{
				Bucket:   p.Source.Bucket,
				MaxBytes: maxBytes,
				CSV:      csvOpt,
				Name:     name,
			})
			if err != nil {
				return err
			}
			log.Printf("probe: key=%s rows=%d cols=%d truncated=%t", key, res.Rows, len(res.Contract.Fields), res.Truncated)

			out, err := yaml.Marshal(struct {
				Schema schema.Contract `yaml:"schema"`
			}{res.Contract})
			if err != nil {
				return fmt.Errorf("marshal contract: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "configs/loans.yaml", "pipeline config path (.yaml or .json)")
	cmd.Flags().StringVar(&key, "key", "", "object key to sample")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", probe.DefaultMaxBytes, "bytes to sample from the start of the object")
	cmd.Flags().StringVar(&name, "name", "", "contract name (defaults to schema.name from the config)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
