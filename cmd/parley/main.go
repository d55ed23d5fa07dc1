// parley - replay and inspect recorded agent event traces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleychat/parley/adapter"
	"github.com/parleychat/parley/config"
	"github.com/parleychat/parley/pipeline"
	"github.com/parleychat/parley/replay"
)

var speedFlag float64

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Event backbone tooling for agent chat sessions",
	Long: `parley - replay and inspect recorded agent event traces.

A trace is a JSONL file of normalized bus events, one envelope per line:

  {"type":"text-delta","sessionId":"s1","delayMs":12,"data":{"text":"hi"}}

Settings are read from .parley.yaml in the current directory when present.`,
	SilenceUsage: true,
}

func init() {
	replayCmd.Flags().Float64Var(&speedFlag, "speed", 0,
		"Playback speed multiplier (0 = use config, negative values are rejected)")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <trace.jsonl>",
	Short: "Play a trace through the pipeline and print render commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(".")
		if err != nil {
			return err
		}
		speed := cfg.ReplaySpeed
		if speedFlag > 0 {
			speed = speedFlag
		}

		trace, err := replay.Load(args[0])
		if err != nil {
			return err
		}

		opts := []pipeline.Option{pipeline.WithCadence(cfg.FlushCadence())}
		if len(cfg.DispatchTools) > 0 {
			opts = append(opts, pipeline.WithDispatchTools(cfg.DispatchTools...))
		}
		p := pipeline.New(opts...)
		defer p.Dispose()

		p.OnBatch(func(cmds []pipeline.Command) {
			for _, c := range cmds {
				fmt.Println(c.String())
			}
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runID := p.StartRun("replay")
		replayer := replay.NewReplayer(p.Bus(), trace, speed)
		if err := replayer.StartStreaming(ctx, adapter.Session{ID: "replay", RunID: runID}, ""); err != nil {
			return err
		}
		p.FlushNow()

		stats := p.Stats()
		fmt.Printf("\n%d events, %d coalesced, %d flushes, %d batches delivered\n",
			stats.Dispatcher.Enqueued, stats.Dispatcher.Coalesced,
			stats.Dispatcher.Flushes, stats.BatchesDelivered)
		if stats.DeltasFiltered > 0 || stats.EchoesSuppressed > 0 {
			fmt.Printf("%d deltas filtered, %d echoes suppressed\n",
				stats.DeltasFiltered, stats.EchoesSuppressed)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <trace.jsonl>",
	Short: "Check every trace line against the event schemas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := replay.Validate(args[0]); err != nil {
			return err
		}
		fmt.Println("trace is valid")
		return nil
	},
}
