package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nnaka2992/peaceful-postgresql/internal/database"
)

func buildSizesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sizes TABLE...",
		Short: "Report the on-disk size of tables",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSizes,
	}
}

func runSizes(cmd *cobra.Command, args []string) error {
	sizes, exceeded, err := probeSizes(cmd.Context(), args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(sizes); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(sizes); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
	default:
		printSizes(w, sizes)
	}
	return thresholdError(exceeded)
}

// probeSizes connects with the configured settings and sizes every name.
// The result is sorted by name.
func probeSizes(ctx context.Context, names []string) ([]TableSize, bool, error) {
	if !cfg.Database.Configured() {
		return nil, false, errNoDatabase
	}
	threshold, err := cfg.Size.ThresholdBytes()
	if err != nil {
		return nil, false, err
	}

	db, err := database.Connect(ctx, connectionConfig())
	if err != nil {
		return nil, false, err
	}
	defer db.Close()

	probe := database.NewSizeProbe(db, cfg.Size.Concurrency, threshold)
	sizes, err := probe.TableSizes(ctx, names)
	if err != nil {
		return nil, false, err
	}

	out := make([]TableSize, 0, len(sizes))
	for _, name := range slices.Sorted(maps.Keys(sizes)) {
		out = append(out, TableSize{
			Name:    name,
			Bytes:   sizes[name],
			Size:    database.FormatSize(sizes[name]),
			Exceeds: sizes[name] > probe.Threshold(),
		})
	}
	return out, probe.ExceedsThreshold(sizes), nil
}

// attachSizes probes every locked name across outputs in one pass and
// hands each output the sizes of its own names
func attachSizes(ctx context.Context, outputs []*Output) (bool, error) {
	seen := make(map[string]bool)
	var names []string
	for _, o := range outputs {
		for name := range o.Locks {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return false, nil
	}

	sizes, exceeded, err := probeSizes(ctx, names)
	if err != nil {
		return false, err
	}
	for _, o := range outputs {
		for _, size := range sizes {
			if _, ok := o.Locks[size.Name]; ok {
				o.Sizes = append(o.Sizes, size)
			}
		}
	}
	return exceeded, nil
}

func printSizes(w io.Writer, sizes []TableSize) {
	for _, size := range sizes {
		line := fmt.Sprintf("  %s: %s", size.Name, size.Size)
		if size.Exceeds {
			line = criticalFormat(line + " (exceeds threshold)")
		}
		fmt.Fprintln(w, line)
	}
}
