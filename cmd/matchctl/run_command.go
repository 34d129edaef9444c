package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfmatch/backend/config"
	"github.com/shelfmatch/backend/internal/domain"
	"github.com/shelfmatch/backend/internal/usecase"
)

func newRunCommand() *cobra.Command {
	var (
		itemsPath   string
		concurrency int
		batch       int
		delay       time.Duration
		timeout     time.Duration
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Match a batch of detection items against the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			items, err := loadItems(itemsPath)
			if err != nil {
				return err
			}

			pipeline, _, cleanup, err := buildPipeline(cfg, debug)
			if err != nil {
				return err
			}
			defer cleanup()

			schedCfg := usecase.SchedulerConfig{
				Concurrency:        cfg.Scheduler.Concurrency,
				AdmissionBatch:     cfg.Scheduler.AdmissionBatch,
				AdmissionDelay:     cfg.Scheduler.AdmissionDelay,
				ItemTimeout:        cfg.Scheduler.ItemTimeout,
				EnableDebugLogging: debug,
			}
			if concurrency > 0 {
				schedCfg.Concurrency = concurrency
			}
			if batch > 0 {
				schedCfg.AdmissionBatch = batch
			}
			if delay > 0 {
				schedCfg.AdmissionDelay = delay
			}
			if timeout > 0 {
				schedCfg.ItemTimeout = timeout
			}
			scheduler := usecase.NewScheduler(schedCfg)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// First interrupt stops admissions and lets in-flight items
			// finish; a second one cancels them outright.
			stop := make(chan struct{})
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				<-sigs
				log.Printf("stopping: waiting for in-flight items (interrupt again to abort)")
				close(stop)
				<-sigs
				cancel()
			}()

			onEvent := func(ev domain.ProgressEvent) {
				if ev.Type == domain.EventComplete {
					return
				}
				fmt.Fprintf(os.Stderr, "\r%d/%d processed (success=%d noMatch=%d errors=%d)",
					ev.Processed, ev.Total, ev.Success, ev.NoMatch, ev.Errors)
			}

			result, err := scheduler.Run(ctx, items, pipeline.Process, onEvent, stop)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			if result.Stopped {
				fmt.Println("run stopped before all items were admitted")
			}

			printDecisions(result.Decisions)
			fmt.Println(renderSummaryTable(
				len(items),
				int(result.Stats.Success),
				int(result.Stats.NoMatch),
				int(result.Stats.Errors),
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&itemsPath, "items", "i", "", "Path to a JSON file with detection items (required)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the concurrency ceiling")
	cmd.Flags().IntVar(&batch, "batch", 0, "Override the admission sub-batch size")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Override the admission delay")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Override the per-item timeout")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("items")

	return cmd
}

// loadItems reads and validates a JSON array of detection items.
func loadItems(path string) ([]domain.DetectionItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}

	var items []domain.DetectionItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse items file: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("items file %q contains no items", path)
	}

	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d (%q): %w", i, item.ID, err)
		}
	}
	return items, nil
}

func printDecisions(decisions []domain.MatchDecision) {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		catalogID, score := "-", "-"
		if d.Selected != nil {
			catalogID = d.Selected.ID
			score = fmt.Sprintf("%.3f", d.Selected.SimilarityScore)
		}
		stage := d.Stage
		if stage == "" {
			stage = "-"
		}
		rows = append(rows, []string{
			d.ItemID,
			string(d.Outcome),
			string(d.SelectionMethod),
			catalogID,
			score,
			stage,
		})
	}
	fmt.Println(renderDecisionTable(rows))
}
