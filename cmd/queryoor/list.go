package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the benchmarks that would run",
	Long:  `Load the configured benchmarks, applying all filters, and print them without running.`,
	RunE:  listBenchmarks,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func listBenchmarks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	seqs := cfg.Benchmark.ExecutionSequenceIDs
	if len(seqs) == 0 {
		seqs = []string{"-"}
	}

	benchmarks, err := newLoader(cfg, st).LoadBenchmarks(ctx, seqs)
	if err != nil {
		return fmt.Errorf("loading benchmarks: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQUENCE\tBENCHMARK\tDATASOURCE\tQUERIES\tRUNS\tCONCURRENCY\tMODE")

	for _, b := range benchmarks {
		mode := "per-query"
		if b.ThroughputTest {
			mode = "throughput"
		}

		names := make([]string, 0, len(b.Queries))
		for _, q := range b.Queries {
			names = append(names, q.Name)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			b.SequenceID, b.UniqueName, b.DataSource, strings.Join(names, ","),
			b.Runs, b.Concurrency, mode)
	}

	return w.Flush()
}
