package service

import (
	"context"
	"errors"
	"io"
	"net/http"

	"signal_relay/internal/models"
	capital "signal_relay/internal/modules/capital/service"
	dedupe "signal_relay/internal/modules/dedupe/service"
	"signal_relay/internal/symbols"
	"signal_relay/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
)

const maxBodyBytes = 1 << 20

// ValidationError is user-caused bad input. Always answered before any
// broker call, never retried.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// Engine is the reconciliation core the handler dispatches into.
type Engine interface {
	Process(ctx context.Context, sig models.Signal, spec symbols.Spec) (models.Outcome, error)
}

// Handler owns the POST /webhook endpoint: parse, validate, dedup, relay.
type Handler struct {
	engine   Engine
	store    dedupe.Store
	registry *symbols.Registry
}

func NewHandler(engine Engine, store dedupe.Store, registry *symbols.Registry) *Handler {
	return &Handler{
		engine:   engine,
		store:    store,
		registry: registry,
	}
}

type webhookRequest struct {
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Intent     string   `json:"intent"`
	Side       string   `json:"side"`
	Size       *float64 `json:"size"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	SignalID   string   `json:"signal_id"`
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	span := opentracing.StartSpan("webhook")
	defer span.Finish()
	ctx := opentracing.ContextWithSpan(r.Context(), span)

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "cannot read body")
		return
	}
	logger.Info("webhook payload: %s", string(raw))

	var req webhookRequest
	if err := sonic.Unmarshal(raw, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid JSON")
		return
	}

	sig, err := parseSignal(req)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetTag("symbol", sig.Symbol)

	// Dedup before any broker work. A store failure degrades to "not yet
	// processed" rather than failing the signal.
	processed, err := h.store.IsProcessed(ctx, sig.SignalID)
	if err != nil {
		logger.Error("dedup check %s: %v", sig.SignalID, err)
		processed = false
	}
	if processed {
		logger.Info("duplicate signal %s ignored", sig.SignalID)
		writeOutcome(w, models.Outcome{
			Status:  models.StatusDuplicateIgnored,
			Details: map[string]any{"signal_id": sig.SignalID},
		})
		return
	}

	spec, ok := h.registry.Lookup(sig.Symbol)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Unknown symbol: "+sig.Symbol)
		return
	}

	outcome, err := h.engine.Process(ctx, sig, spec)
	if err != nil {
		status, detail := classify(err)
		logger.Error("signal %s failed: %v", sig.Symbol, err)
		writeDetail(w, status, detail)
		return
	}

	if err := h.store.MarkProcessed(ctx, sig.SignalID); err != nil {
		// At-least-once contract: a mark failure is logged, not surfaced.
		logger.Error("mark processed %s: %v", sig.SignalID, err)
	}

	writeOutcome(w, outcome)
}

func parseSignal(req webhookRequest) (models.Signal, error) {
	if req.Symbol == "" {
		return models.Signal{}, &ValidationError{Detail: "Missing 'symbol'"}
	}

	sig := models.Signal{
		Symbol:   req.Symbol,
		SignalID: req.SignalID,
	}
	if req.Size != nil {
		sig.Size = *req.Size
	}
	if req.StopLoss != nil {
		sig.StopLoss = *req.StopLoss
	}
	if req.TakeProfit != nil {
		sig.TakeProfit = *req.TakeProfit
	}

	// Two inbound vocabularies: the legacy action (buy/sell/close) and the
	// explicit intent (open/close/close_partial with a side).
	switch {
	case req.Action != "":
		switch req.Action {
		case "buy":
			sig.Intent = models.IntentOpen
			sig.Direction = models.DirectionBuy
		case "sell":
			sig.Intent = models.IntentOpen
			sig.Direction = models.DirectionSell
		case "close":
			sig.Intent = models.IntentClose
		default:
			return models.Signal{}, &ValidationError{Detail: "Invalid action: " + req.Action}
		}
	case req.Intent != "":
		sig.Intent = models.Intent(req.Intent)
		if sig.Intent == models.IntentOpen {
			switch req.Side {
			case "buy":
				sig.Direction = models.DirectionBuy
			case "sell":
				sig.Direction = models.DirectionSell
			default:
				return models.Signal{}, &ValidationError{Detail: "intent 'open' requires side buy|sell"}
			}
		}
		if sig.Intent == models.IntentClosePartial && req.Size == nil {
			return models.Signal{}, &ValidationError{Detail: "intent 'close_partial' requires 'size'"}
		}
	default:
		return models.Signal{}, &ValidationError{Detail: "Missing 'action' or 'intent'"}
	}

	return sig, nil
}

// classify maps engine errors onto HTTP statuses: broker-side failures are
// 500 with the broker's text, everything else a plain 500.
func classify(err error) (int, string) {
	var authErr *capital.AuthenticationError
	if errors.As(err, &authErr) {
		return http.StatusInternalServerError, authErr.Error()
	}
	var reqErr *capital.RequestError
	if errors.As(err, &reqErr) {
		return http.StatusInternalServerError, reqErr.Body
	}
	var posErr *capital.PositionFetchError
	if errors.As(err, &posErr) {
		return http.StatusInternalServerError, posErr.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func writeOutcome(w http.ResponseWriter, o models.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	b, _ := sonic.Marshal(o)
	_, _ = w.Write(b)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	b, _ := sonic.Marshal(map[string]string{"detail": detail})
	_, _ = w.Write(b)
}
