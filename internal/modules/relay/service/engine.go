package service

import (
	"context"
	"math"

	"signal_relay/internal/models"
	capital "signal_relay/internal/modules/capital/service"
	"signal_relay/internal/modules/config"
	"signal_relay/internal/notify"
	"signal_relay/internal/symbols"
	"signal_relay/pkg/logger"
)

// Broker is the slice of the capital client the engine needs.
type Broker interface {
	FindPosition(ctx context.Context, epic string) (*models.Position, error)
	PlaceOrder(ctx context.Context, p capital.OrderParams) (string, error)
	AmendPosition(ctx context.Context, dealID string, stopLevel, profitLevel float64) error
	ClosePosition(ctx context.Context, dealID string) error
}

// QuoteSource supplies a last-seen price per epic, 0 when unknown. Used only
// as the reference for the relative stop threshold when the position record
// carries no open price.
type QuoteSource interface {
	LastPrice(epic string) float64
}

type Settings struct {
	ForceOpen       bool
	CloseMode       string
	StopAmendAbs    float64
	StopAmendMinPct float64
}

// Engine reconciles a signal's intent against the broker's current position
// on the instrument and emits the minimum set of orders, or none.
type Engine struct {
	broker   Broker
	quotes   QuoteSource
	notifier notify.Notifier
	cfg      Settings
}

func NewEngine(broker Broker, quotes QuoteSource, notifier notify.Notifier, cfg Settings) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{
		broker:   broker,
		quotes:   quotes,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Process runs one signal. The position snapshot is always fetched fresh:
// broker state may have moved between deliveries.
func (e *Engine) Process(ctx context.Context, sig models.Signal, spec symbols.Spec) (models.Outcome, error) {
	switch sig.Intent {
	case models.IntentOpen, models.IntentClose, models.IntentClosePartial:
	default:
		// Unknown intents never reach the broker.
		return models.Outcome{
			Status:  models.StatusUnknownIntent,
			Details: map[string]any{"intent": string(sig.Intent)},
		}, nil
	}

	pos, err := e.broker.FindPosition(ctx, spec.Epic)
	if err != nil {
		return models.Outcome{}, err
	}

	switch sig.Intent {
	case models.IntentOpen:
		return e.open(ctx, sig, spec, pos)
	case models.IntentClose:
		return e.closeFull(ctx, spec, pos)
	default:
		return e.closePartial(ctx, sig, spec, pos)
	}
}

func (e *Engine) open(ctx context.Context, sig models.Signal, spec symbols.Spec, pos *models.Position) (models.Outcome, error) {
	if pos != nil && pos.Direction == sig.Direction {
		// Same-direction entry on an open position: at most a stop amendment.
		if sig.StopLoss > 0 && e.stopMateriallyMoved(spec.Epic, pos, sig.StopLoss) {
			if err := e.broker.AmendPosition(ctx, pos.DealID, sig.StopLoss, sig.TakeProfit); err != nil {
				return models.Outcome{}, err
			}
			logger.Info("%s: amended stop to %.5f on deal %s", spec.Symbol, sig.StopLoss, pos.DealID)
			return models.Outcome{
				Status: models.StatusAmendedStopLimit,
				Details: map[string]any{
					"dealId":    pos.DealID,
					"stopLevel": sig.StopLoss,
				},
			}, nil
		}
		return models.Outcome{
			Status:  models.StatusIgnoredPositionOpen,
			Details: map[string]any{"dealId": pos.DealID, "reason": "no meaningful change"},
		}, nil
	}

	if pos != nil {
		// Opposite direction: flip. Close first, then enter. A failed entry
		// after a successful close is a partial execution and must be loud.
		if err := e.closeExisting(ctx, pos); err != nil {
			return models.Outcome{}, err
		}
		ref, err := e.placeEntry(ctx, sig, spec)
		if err != nil {
			logger.Error("%s: position %s closed but new %s entry failed: %v",
				spec.Symbol, pos.DealID, sig.Direction, err)
			e.notifier.Sendf("⚠️ %s: flipped out of %s but the new %s entry failed: %v",
				spec.Symbol, pos.DealID, sig.Direction, err)
			return models.Outcome{}, err
		}
		e.notifier.Sendf("🔁 %s: flipped to %s, size %.2f", spec.Symbol, sig.Direction, entrySize(sig, spec))
		return models.Outcome{
			Status: models.StatusEntryExecuted,
			Details: map[string]any{
				"dealReference": ref,
				"direction":     string(sig.Direction),
				"flipped":       true,
			},
		}, nil
	}

	ref, err := e.placeEntry(ctx, sig, spec)
	if err != nil {
		return models.Outcome{}, err
	}
	e.notifier.Sendf("📈 %s: %s entry, size %.2f", spec.Symbol, sig.Direction, entrySize(sig, spec))
	return models.Outcome{
		Status: models.StatusEntryExecuted,
		Details: map[string]any{
			"dealReference": ref,
			"direction":     string(sig.Direction),
			"size":          entrySize(sig, spec),
		},
	}, nil
}

func (e *Engine) closeFull(ctx context.Context, spec symbols.Spec, pos *models.Position) (models.Outcome, error) {
	if pos == nil {
		return models.Outcome{
			Status:  models.StatusNoPositionToClose,
			Details: map[string]any{"epic": spec.Epic},
		}, nil
	}
	if err := e.closeExisting(ctx, pos); err != nil {
		return models.Outcome{}, err
	}
	e.notifier.Sendf("📉 %s: closed %s position, size %.2f", spec.Symbol, pos.Direction, pos.Size)
	return models.Outcome{
		Status: models.StatusPositionsClosed,
		Details: map[string]any{
			"dealId": pos.DealID,
			"size":   pos.Size,
		},
	}, nil
}

func (e *Engine) closePartial(ctx context.Context, sig models.Signal, spec symbols.Spec, pos *models.Position) (models.Outcome, error) {
	if pos == nil {
		return models.Outcome{
			Status:  models.StatusNoPositionToClose,
			Details: map[string]any{"epic": spec.Epic},
		}, nil
	}

	ratio := sig.Size
	if ratio <= 0 || ratio >= 1 {
		// Out-of-range ratio degrades to a full close.
		return e.closeFull(ctx, spec, pos)
	}

	size := round2(pos.Size * ratio)
	_, err := e.broker.PlaceOrder(ctx, capital.OrderParams{
		Epic:      pos.Epic,
		Direction: pos.Direction.Opposite(),
		Size:      size,
		ForceOpen: false, // size-reducing, must not open a counter position
	})
	if err != nil {
		return models.Outcome{}, err
	}
	e.notifier.Sendf("✂️ %s: partial close %.0f%%, size %.2f", spec.Symbol, ratio*100, size)
	return models.Outcome{
		Status: models.StatusPartialCloseExecuted,
		Details: map[string]any{
			"dealId": pos.DealID,
			"ratio":  ratio,
			"size":   size,
		},
	}, nil
}

func (e *Engine) placeEntry(ctx context.Context, sig models.Signal, spec symbols.Spec) (string, error) {
	return e.broker.PlaceOrder(ctx, capital.OrderParams{
		Epic:        spec.Epic,
		Direction:   sig.Direction,
		Size:        entrySize(sig, spec),
		StopLevel:   sig.StopLoss,
		ProfitLevel: sig.TakeProfit,
		ForceOpen:   e.cfg.ForceOpen,
	})
}

// closeExisting closes by deal-id deletion, falling back to an offsetting
// market order when deletion fails or counter_order mode is configured.
func (e *Engine) closeExisting(ctx context.Context, pos *models.Position) error {
	if e.cfg.CloseMode != config.CloseModeCounterOrder {
		err := e.broker.ClosePosition(ctx, pos.DealID)
		if err == nil {
			return nil
		}
		logger.Error("delete deal %s failed (%v), sending counter-order", pos.DealID, err)
	}
	_, err := e.broker.PlaceOrder(ctx, capital.OrderParams{
		Epic:      pos.Epic,
		Direction: pos.Direction.Opposite(),
		Size:      pos.Size,
		ForceOpen: false,
	})
	return err
}

// stopMateriallyMoved decides whether a proposed stop differs enough from the
// current one to be worth an amend call. Either configured threshold may
// trigger; an absent current stop always counts as material.
func (e *Engine) stopMateriallyMoved(epic string, pos *models.Position, proposed float64) bool {
	if pos.StopLevel == 0 {
		return true
	}
	diff := math.Abs(proposed - pos.StopLevel)
	if e.cfg.StopAmendAbs > 0 && diff > e.cfg.StopAmendAbs {
		return true
	}
	if e.cfg.StopAmendMinPct > 0 {
		ref := pos.Level
		if ref == 0 && e.quotes != nil {
			ref = e.quotes.LastPrice(epic)
		}
		if ref > 0 && diff/ref*100 > e.cfg.StopAmendMinPct {
			return true
		}
	}
	return false
}

func entrySize(sig models.Signal, spec symbols.Spec) float64 {
	if sig.Size > 0 {
		return sig.Size
	}
	return spec.Size
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
