package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/ops"
)

const demoTickInterval = 100 * time.Millisecond

func runDemo(cmd *cobra.Command, args []string) error {
	ticks, err := cmd.Flags().GetInt("ticks")
	if err != nil {
		return err
	}
	if ticks < 1 {
		return fmt.Errorf("--ticks must be at least 1, got %d", ticks)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("tick-interval") {
		cfg.Engine.TickInterval = demoTickInterval
	}
	cfg.Feed.Enabled = true

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	sub := a.engine.Subscribe(ctx)

	engineErr := make(chan error, 1)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engineErr <- a.engine.Run(ctx)
	}()

	// Nothing started here may outlive the command.
	defer func() {
		sub.Close()
		cancel()
		<-engineDone
		a.hub.Close()
	}()

	var last *domain.Snapshot
	timeout := time.After(time.Duration(ticks)*cfg.Engine.TickInterval*2 + 5*time.Second)
	for last == nil || last.Seq < uint64(ticks) {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				return errors.New("snapshot stream closed")
			}
			last = snap
		case err := <-engineErr:
			return fmt.Errorf("engine stopped: %w", err)
		case <-timeout:
			return fmt.Errorf("demo timed out before %d ticks", ticks)
		}
	}

	sub.Close()
	cancel()
	if err := <-engineErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ops.NewStatusRenderer(cmd.OutOrStdout()).RenderSnapshot(last, a.engine.Stats())
	return nil
}
