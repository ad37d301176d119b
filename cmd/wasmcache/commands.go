package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cache/engine"
)

func newSaveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <file.wasm>...",
		Short: "Check, compile and store modules, printing their checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx, nil)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			for _, file := range args {
				code, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				checksum, err := c.Save(ctx, code)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				a.logger.Info("module saved", zap.String("file", file), zap.Stringer("checksum", checksum))
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", checksum, file)
			}
			return nil
		},
	}
}

func newLoadCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "load <checksum>",
		Short: "Write a stored module to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checksum, err := engine.ParseChecksum(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := a.open(ctx, nil)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			code, err := c.Load(checksum)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(code)
				return err
			}
			if err := os.WriteFile(output, code, 0o644); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s to %s\n", datasize.ByteSize(len(code)).HR(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the module to this file instead of stdout")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the checksums of stored modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx, nil)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			checksums, err := c.Checksums()
			if err != nil {
				return err
			}
			for _, checksum := range checksums {
				fmt.Fprintln(cmd.OutOrStdout(), checksum)
			}
			return nil
		},
	}
}

func newStatsCommand(a *app) *cobra.Command {
	var metrics bool
	cmd := &cobra.Command{
		Use:   "stats [file.wasm]...",
		Short: "Save and reload modules, then print cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var reg *prometheus.Registry
			if metrics {
				reg = prometheus.NewRegistry()
			}
			c, err := a.open(ctx, registerer(reg))
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			for _, file := range args {
				code, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				checksum, err := c.Save(ctx, code)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				if _, err := c.Load(checksum); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
			}

			out := cmd.OutOrStdout()
			if metrics {
				return writeMetrics(out, reg)
			}

			opts := c.Options()
			s := c.Stats()
			fmt.Fprintf(out, "Base dir:          %s\n", opts.BaseDir)
			fmt.Fprintf(out, "Features:          %s\n", opts.SupportedFeatures)
			fmt.Fprintf(out, "Memory cache size: %s\n", opts.MemoryCacheSize.HR())
			fmt.Fprintf(out, "Memory limit:      %s\n", opts.InstanceMemoryLimit.HR())
			fmt.Fprintf(out, "Saves:             %d\n", s.Saves)
			fmt.Fprintf(out, "Memory cache hits: %d\n", s.HitsMemoryCache)
			fmt.Fprintf(out, "Disk hits:         %d\n", s.HitsFsCache)
			fmt.Fprintf(out, "Misses:            %d\n", s.Misses)
			return nil
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print the cache's prometheus metrics instead of the summary")
	return cmd
}

// registerer avoids handing the engine a typed nil interface.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

// writeMetrics prints every gathered sample as name{labels} value.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), sampleValue(mf.GetType(), m))
		}
	}
	return nil
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}
