package commands

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/marmos91/flashcore/internal/cli/output"
	"github.com/marmos91/flashcore/internal/logger"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/medium/memory"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	burninCycles  int
	burninWorkers int
	burninFaults  int
)

var burninCmd = &cobra.Command{
	Use:   "burnin",
	Short: "Run a destructive write/read burn-in test",
	Long: `Exercise the device with concurrent allocate-program-verify cycles.

Each cycle allocates a freshly erased block, programs every page with a
deterministic pattern, and reads it back. Blocks that fail an erase or a
program are quarantined along the way, so a burn-in doubles as a stress
provisioning pass. The test stops early if the device runs out of
eligible blocks.

With --fault-blocks N (memory backend only), one erase fault is injected
on each of the first N blocks to exercise the quarantine path.

The burn-in ERASES DATA on every block it touches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if burninCycles <= 0 || burninWorkers <= 0 {
			return fmt.Errorf("--cycles and --workers must be positive")
		}

		ctx, stop := signalContext(context.Background())
		defer stop()

		e, err := buildEnv(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		if err := injectFaults(e); err != nil {
			return err
		}

		metricsSrv := startMetricsServer(e)
		if metricsSrv != nil {
			defer shutdownMetricsServer(metricsSrv)
		}

		result, err := runBurnin(ctx, e)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		if err := e.saveSnapshot(context.Background()); err != nil {
			return err
		}

		stats := e.core.Statistics()
		fmt.Printf("Burn-in complete for device %s\n\n", e.deviceUUID())
		return output.KeyValueTable(os.Stdout, [][2]string{
			{"Cycles completed", fmt.Sprintf("%d", result.completed.Load())},
			{"Verify mismatches", fmt.Sprintf("%d", result.mismatches.Load())},
			{"Bad blocks", fmt.Sprintf("%d", stats.BadBlocks)},
			{"Avg erase count", fmt.Sprintf("%.2f", stats.AvgEraseCount)},
		})
	},
}

type burninResult struct {
	completed  atomic.Int64
	mismatches atomic.Int64
}

// injectFaults arms one erase fault on each of the first --fault-blocks
// blocks. Only the memory backend supports injection.
func injectFaults(e *env) error {
	if burninFaults <= 0 {
		return nil
	}
	mem, ok := e.med.(*memory.Medium)
	if !ok {
		return fmt.Errorf("--fault-blocks requires the memory device backend")
	}

	geo := e.core.Geometry()
	n := uint32(burninFaults)
	if n > geo.TotalBlocks {
		n = geo.TotalBlocks
	}
	for id := uint32(0); id < n; id++ {
		mem.FailEraseAt(geo.BlockOffset(id), 1)
	}
	logger.Info("armed erase faults for burn-in", "blocks", n)
	return nil
}

// runBurnin distributes burninCycles cycles over burninWorkers goroutines.
// A device exhausted of eligible blocks ends the run without failing it;
// any other error aborts the whole group.
func runBurnin(ctx context.Context, e *env) (*burninResult, error) {
	var (
		result burninResult
		next   atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < burninWorkers; w++ {
		g.Go(func() error {
			for {
				cycle := next.Add(1)
				if cycle > int64(burninCycles) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}

				if err := runCycle(gctx, e, uint64(cycle), &result); err != nil {
					if errors.Is(err, flash.ErrNoEligibleBlock) {
						logger.Warn("device exhausted, stopping burn-in", "cycle", cycle)
						return nil
					}
					return err
				}
				result.completed.Add(1)
			}
		})
	}

	err := g.Wait()
	return &result, err
}

// runCycle performs one allocate-program-verify pass.
//
// A quarantined program failure does not fail the cycle: the block was
// retired, the cycle's work just moves to the next allocation.
func runCycle(ctx context.Context, e *env, seed uint64, result *burninResult) error {
	eraseCtx, cancel := e.eraseCtx(ctx)
	blockID, err := e.core.AllocateAndErase(eraseCtx)
	cancel()
	if err != nil {
		return err
	}

	geo := e.core.Geometry()
	for page := uint32(0); page < geo.PagesPerBlock(); page++ {
		data, oob := cyclePattern(geo.PageSize, geo.OOBSize, seed, blockID, page)

		if err := e.core.ProgramPage(ctx, blockID, page, data, oob); err != nil {
			if errors.Is(err, flash.ErrProgramFailed) {
				logger.Warn("program failure during burn-in", "block", blockID, "page", page)
				return nil
			}
			return err
		}

		gotData, gotOOB, err := e.core.ReadPage(ctx, blockID, page)
		if err != nil {
			return err
		}
		if !bytes.Equal(gotData, data) || !bytes.Equal(gotOOB, oob) {
			result.mismatches.Add(1)
			logger.Error("verify mismatch", "block", blockID, "page", page)
		}
	}
	return nil
}

// cyclePattern builds a deterministic per-page payload so corruption is
// attributable to a specific cycle, block, and page.
func cyclePattern(pageSize, oobSize uint32, seed uint64, blockID, page uint32) ([]byte, []byte) {
	var header [16]byte
	binary.BigEndian.PutUint64(header[0:], seed)
	binary.BigEndian.PutUint32(header[8:], blockID)
	binary.BigEndian.PutUint32(header[12:], page)

	data := make([]byte, pageSize)
	for i := range data {
		data[i] = header[i%len(header)] ^ byte(i)
	}

	var oob []byte
	if oobSize > 0 {
		oob = make([]byte, oobSize)
		for i := range oob {
			oob[i] = header[i%len(header)]
		}
	}
	return data, oob
}

// startMetricsServer exposes the run's metrics registry while the burn-in
// is running. Returns nil when metrics are disabled.
func startMetricsServer(e *env) *http.Server {
	if e.registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", e.cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics server listening", "port", e.cfg.Metrics.Port)
	return srv
}

func shutdownMetricsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
}

func init() {
	burninCmd.Flags().IntVar(&burninCycles, "cycles", 64, "Total allocate-program-verify cycles")
	burninCmd.Flags().IntVar(&burninWorkers, "workers", 4, "Concurrent burn-in workers")
	burninCmd.Flags().IntVar(&burninFaults, "fault-blocks", 0, "Inject one erase fault on each of the first N blocks (memory backend)")
}
