package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/flashcore/internal/cli/output"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/spf13/cobra"
)

var (
	statsFormat string
	statsBlocks bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show wear and health statistics",
	Long: `Display aggregate wear statistics for the device: block counts by health
state and erase-count distribution. With --blocks, list every block's
record, including quarantine reasons.

Statistics reflect the latest persisted metadata snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(statsFormat)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(context.Background())
		defer stop()

		e, err := buildEnv(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		if statsBlocks {
			return printBlocks(e, format)
		}
		return printStats(e, format)
	},
}

func printStats(e *env, format output.Format) error {
	stats := e.core.Statistics()

	if format != output.FormatTable {
		return output.Print(os.Stdout, format, stats)
	}

	fmt.Printf("Device %s\n\n", e.deviceUUID())
	return output.KeyValueTable(os.Stdout, [][2]string{
		{"Total blocks", fmt.Sprintf("%d", stats.TotalBlocks)},
		{"Good blocks", fmt.Sprintf("%d", stats.GoodBlocks)},
		{"Worn blocks", fmt.Sprintf("%d", stats.WornBlocks)},
		{"Bad blocks", fmt.Sprintf("%d", stats.BadBlocks)},
		{"Avg erase count", fmt.Sprintf("%.2f", stats.AvgEraseCount)},
		{"Max erase count", fmt.Sprintf("%d", stats.MaxEraseCount)},
	})
}

func printBlocks(e *env, format output.Format) error {
	total := e.core.Geometry().TotalBlocks

	records := make([]flash.BlockRecord, 0, total)
	for id := uint32(0); id < total; id++ {
		rec, err := e.core.BlockRecord(id)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if format != output.FormatTable {
		return output.Print(os.Stdout, format, records)
	}

	table := output.NewTableData("Block", "State", "Erases", "Writes", "Reason")
	for _, rec := range records {
		table.AddRow(
			fmt.Sprintf("%d", rec.BlockID),
			rec.State.String(),
			fmt.Sprintf("%d", rec.EraseCount),
			fmt.Sprintf("%d", rec.WriteCount),
			rec.BadReason,
		)
	}
	return output.PrintTable(os.Stdout, table)
}

func init() {
	statsCmd.Flags().StringVarP(&statsFormat, "output", "o", "table", "Output format (table|json|yaml)")
	statsCmd.Flags().BoolVar(&statsBlocks, "blocks", false, "List per-block records instead of aggregates")
}
