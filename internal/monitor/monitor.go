// Package monitor wires the pipeline together: fetch the sheet regions,
// diff them against the persisted snapshots, deliver an alert when anything
// moved, and persist the new snapshots regardless of delivery outcome.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stock_monitor/internal/config"
	"stock_monitor/internal/diff"
	"stock_monitor/internal/grid"
	"stock_monitor/internal/inventory"
	"stock_monitor/internal/notify"
	"stock_monitor/internal/report"
	"stock_monitor/internal/retry"
	"stock_monitor/internal/sheets"
	"stock_monitor/internal/state"
)

// scalarLabel names the tracked derived metric in alerts and logs.
const scalarLabel = "Stock balance discrepancy"

// Pipeline is one configured monitor instance. It is single-threaded and
// run-to-completion; the only state shared between runs lives in the
// encrypted store and the notifier's circuit breaker.
type Pipeline struct {
	cfg        config.Pipeline
	sheetRead  retry.Config
	client     *sheets.Client
	store      *state.Store
	notifier   *notify.Client
	detector   diff.Detector
	tracker    diff.DifferenceTracker
	builder    report.Builder
	etlBalance inventory.ETLBalanceSource
}

// New assembles a pipeline from its collaborators.
func New(cfg config.Pipeline, resilience config.ResilienceConfig, client *sheets.Client, store *state.Store, notifier *notify.Client) *Pipeline {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Unknown timezone, falling back to UTC")
		location = time.UTC
	}

	sheetRead := resilience.SheetRead
	sheetRead.Retryable = sheets.IsTransient

	return &Pipeline{
		cfg:       cfg,
		sheetRead: sheetRead,
		client:    client,
		store:     store,
		notifier:  notifier,
		detector: diff.Detector{
			DriftThreshold:  cfg.DriftThreshold,
			ScalarTolerance: cfg.ScalarTolerance,
			ExcludeRecord:   inventory.IsDerivedWeight,
		},
		tracker: diff.DifferenceTracker{BaselineOffset: cfg.BaselineOffset},
		builder: report.Builder{Location: location},
		etlBalance: inventory.ETLBalanceSource{
			Client:        client,
			SpreadsheetID: cfg.InventorySheetID,
			SheetName:     cfg.SummarySheetName,
			Range:         cfg.SummaryRange,
			Location:      location,
		},
	}
}

// Run executes one monitor pass. Delivery failures are swallowed after
// dead-lettering; only durability failures (cannot persist state) abort,
// because a run that cannot record what it saw would re-alert the same
// changes forever.
func (p *Pipeline) Run(ctx context.Context) error {
	log.Debug().Msg("Starting monitor run")
	p.store.ClearReadFailureAlert()

	stockGrid, err := p.fetchGrid(ctx, p.cfg.StockSheetName, p.cfg.StockRange)
	if err != nil {
		return fmt.Errorf("failed to fetch stock sheet: %w", err)
	}
	partsGrid, err := p.fetchGrid(ctx, p.cfg.PartsSheetName, p.cfg.PartsRange)
	if err != nil {
		// Parts are secondary; stock monitoring proceeds without them.
		log.Warn().Err(err).Msg("Failed to fetch parts sheet, skipping parts this run")
		partsGrid = nil
	}

	previousStock := p.store.LoadGrid(config.StockStateKey)
	stockChanges, stockReset := p.detector.DetectStructural(previousStock, stockGrid)
	if stockReset {
		log.Info().Msg("Stock sheet restructured, baseline will be re-seeded")
	}

	var partsChanges []diff.ChangeRecord
	if partsGrid != nil {
		previousParts := p.store.LoadGrid(config.PartsStateKey)
		var partsReset bool
		partsChanges, partsReset = p.detector.DetectStructural(previousParts, partsGrid)
		if partsReset {
			log.Info().Msg("Parts sheet restructured, baseline will be re-seeded")
		}
	}

	physicalCount := inventory.PhysicalPieceCount(stockGrid)
	etlBalance := p.etlBalance.CurrentBalance(ctx)
	currentDifference := p.tracker.Compute(physicalCount, etlBalance)
	previousDifference := p.store.LoadScalar(config.DifferenceStateKey)
	scalarChange := p.detector.DetectScalar(previousDifference, currentDifference, scalarLabel)

	if len(stockChanges) > 0 || len(partsChanges) > 0 || scalarChange != nil {
		log.Info().
			Int("stock_changes", len(stockChanges)).
			Int("parts_changes", len(partsChanges)).
			Bool("balance_change", scalarChange != nil).
			Msg("Changes detected, delivering alert")

		payload := p.builder.Build(stockChanges, stockGrid, partsChanges, partsGrid,
			physicalCount, etlBalance, currentDifference)
		if err := p.notifier.Deliver(ctx, payload); err != nil {
			var durability *state.DurabilityError
			if errors.As(err, &durability) {
				return err
			}
			// Dead-lettered; state still progresses so the next run does
			// not re-detect the same change.
			log.Error().Err(err).Msg("Alert delivery failed, continuing to persist state")
		}
	} else {
		log.Info().Msg("No changes detected")
	}

	return p.persist(stockGrid, partsGrid, currentDifference)
}

// persist unconditionally overwrites every snapshot with the current
// observation. It runs regardless of delivery outcome.
func (p *Pipeline) persist(stockGrid, partsGrid grid.RawGrid, difference *float64) error {
	if err := p.store.SaveGrid(config.StockStateKey, stockGrid); err != nil {
		return err
	}
	if partsGrid != nil {
		if err := p.store.SaveGrid(config.PartsStateKey, partsGrid); err != nil {
			return err
		}
	}
	if err := p.store.SaveScalar(config.DifferenceStateKey, difference); err != nil {
		return err
	}
	log.Debug().Msg("Snapshots persisted")
	return nil
}

func (p *Pipeline) fetchGrid(ctx context.Context, sheetName, a1Range string) (grid.RawGrid, error) {
	return retry.WithRetry(ctx, p.sheetRead, func(ctx context.Context) (grid.RawGrid, error) {
		return p.client.FetchRange(ctx, p.cfg.SpreadsheetID, sheetName, a1Range)
	})
}
