package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/flashcore/internal/cli/output"
	"github.com/spf13/cobra"
)

var scanYes bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a destructive bad-block provisioning scan",
	Long: `Test-erase every non-quarantined block on the device. Blocks that fail
their erase are quarantined permanently.

The scan ERASES ALL DATA on the device. It is meant for provisioning a
new device or re-validating one after redeployment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !scanYes {
			return fmt.Errorf("the scan erases all data on the device; re-run with --yes to confirm")
		}

		ctx, stop := signalContext(context.Background())
		defer stop()

		e, err := buildEnv(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		report, err := e.core.ScanAll(ctx)
		if err != nil {
			return err
		}

		if err := e.saveSnapshot(ctx); err != nil {
			return err
		}

		fmt.Printf("Scan complete for device %s\n\n", e.deviceUUID())
		return output.KeyValueTable(os.Stdout, [][2]string{
			{"Good blocks", fmt.Sprintf("%d", report.Good)},
			{"Newly quarantined", fmt.Sprintf("%d", report.NewlyBad)},
			{"Previously quarantined", fmt.Sprintf("%d", report.AlreadyBad)},
		})
	},
}

func init() {
	scanCmd.Flags().BoolVarP(&scanYes, "yes", "y", false, "Confirm the destructive scan")
}
