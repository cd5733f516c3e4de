// corectl inspects and exercises the context core off-device: dump the
// persistence store, replay recorded sensor fixtures, export pending
// training data.
package main

import (
	"fmt"
	"os"

	"github.com/danielpatrickdp/context-core/internal/engine"
	"github.com/danielpatrickdp/context-core/internal/replay"
	"github.com/danielpatrickdp/context-core/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region root

func main() {
	root := &cobra.Command{
		Use:           "corectl",
		Short:         "Inspect and replay the on-device context core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(inspectCmd(), replayCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// #endregion root

// #region inspect

func inspectCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump places, learned signals and decision stats from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			places, err := s.LoadPlaces()
			if err != nil {
				return err
			}
			fmt.Printf("places: %d\n", len(places))
			for _, p := range places {
				fmt.Printf("  %-12s %-10s %-8s conf=%.2f points=%d radius=%.0fm center=(%.5f, %.5f)\n",
					p.ID, p.SuggestedName, p.SuggestedCategory, p.Confidence,
					p.PointCount, p.RadiusMeters, p.CenterLat, p.CenterLng)
			}

			signals, err := s.LoadSignals()
			if err != nil {
				return err
			}
			fmt.Printf("learned signals: %d places\n", len(signals))
			for id, sig := range signals {
				fmt.Printf("  %-12s wifi=%d bt=%d observations=%d\n",
					id, len(sig.WifiSsids), len(sig.BtDevices), sig.TotalObservations)
			}

			total, rewarded, err := s.DecisionStats()
			if err != nil {
				return err
			}
			fmt.Printf("decisions: %d total, %d rewarded\n", total, rewarded)
			if best, score, err := s.BestAction(); err == nil && best != "" {
				fmt.Printf("best action: %s (decayed reward %.3f)\n", best, score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "core.db", "path to the store database")
	return cmd
}

// #endregion inspect

// #region replay

func replayCmd() *cobra.Command {
	var (
		fixturePath string
		dbPath      string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a JSONL sensor fixture through the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop()
			if verbose {
				var err error
				if log, err = zap.NewDevelopment(); err != nil {
					return err
				}
				defer log.Sync()
			}

			events, skipped, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}

			opts := []engine.Option{engine.WithLogger(log)}
			if dbPath != "" {
				s, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer s.Close()
				opts = append(opts, engine.WithStore(s))
			}

			eng := engine.New(engine.DefaultConfig(), opts...)
			if dbPath != "" {
				if err := eng.LoadState(); err != nil {
					return err
				}
			}

			summary, err := replay.NewHarness(eng, log).Run(events)
			if err != nil {
				return err
			}
			summary.Skipped = skipped

			fmt.Printf("events: %d (skipped %d)\n", summary.Events, summary.Skipped)
			fmt.Printf("motion transitions: %d, interval changes: %d\n",
				summary.Transitions, summary.IntervalChanges)
			fmt.Printf("gps fixes: %d (rejected %d)\n", summary.GPSFixes, summary.RejectedFixes)
			fmt.Printf("clusters discovered: %d\n", summary.Clusters)
			fmt.Printf("rules matching at end: %d\n", summary.RuleMatches)
			fmt.Printf("final motion state: %s\n", summary.FinalMotionState)

			if dbPath != "" {
				if err := eng.SaveState(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to the JSONL sensor fixture (required)")
	cmd.Flags().StringVar(&dbPath, "db", "", "optional store database to load/save engine state")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity")
	cmd.MarkFlagRequired("fixture")
	return cmd
}

// #endregion replay

// #region export

func exportCmd() *cobra.Command {
	var (
		dbPath   string
		deviceID string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the pending training export from the latest buffer snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			config := engine.DefaultConfig()
			if deviceID != "" {
				config.DeviceID = deviceID
			}
			eng := engine.New(config, engine.WithStore(s))
			if err := eng.LoadState(); err != nil {
				return err
			}

			out, err := eng.Buffer.ExportPendingAsJSON()
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "core.db", "path to the store database")
	cmd.Flags().StringVar(&deviceID, "device", "", "override the device id stamped into the export")
	return cmd
}

// #endregion export
