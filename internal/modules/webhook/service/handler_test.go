package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"signal_relay/internal/models"
	capital "signal_relay/internal/modules/capital/service"
	"signal_relay/internal/symbols"
	"signal_relay/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeEngine struct {
	got     []models.Signal
	outcome models.Outcome
	err     error
}

func (f *fakeEngine) Process(_ context.Context, sig models.Signal, _ symbols.Spec) (models.Outcome, error) {
	f.got = append(f.got, sig)
	return f.outcome, f.err
}

type fakeStore struct {
	processed map[string]bool
	marked    []string
}

func (f *fakeStore) IsProcessed(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return f.processed[id], nil
}

func (f *fakeStore) MarkProcessed(_ context.Context, id string) error {
	f.marked = append(f.marked, id)
	return nil
}

func newTestHandler(t *testing.T, engine *fakeEngine, store *fakeStore) *Handler {
	t.Helper()
	reg, err := symbols.Load("")
	require.NoError(t, err)
	if store.processed == nil {
		store.processed = map[string]bool{}
	}
	return NewHandler(engine, store, reg)
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	h.HandleWebhook(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestMalformedJSONIs422(t *testing.T) {
	h := newTestHandler(t, &fakeEngine{}, &fakeStore{})
	rec := post(h, `{not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Invalid JSON", decode(t, rec)["detail"])
}

func TestMissingFieldsAre400(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no symbol", `{"action":"buy"}`, "Missing 'symbol'"},
		{"no action or intent", `{"symbol":"GOLD"}`, "Missing 'action' or 'intent'"},
		{"bad action", `{"symbol":"GOLD","action":"hold"}`, "Invalid action: hold"},
		{"open without side", `{"symbol":"GOLD","intent":"open"}`, "intent 'open' requires side buy|sell"},
		{"partial without size", `{"symbol":"GOLD","intent":"close_partial"}`, "intent 'close_partial' requires 'size'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &fakeEngine{}, &fakeStore{})
			rec := post(h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)["detail"])
		})
	}
}

func TestUnknownSymbolIs400(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestHandler(t, engine, &fakeStore{})
	rec := post(h, `{"symbol":"DOGE","action":"buy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "Unknown symbol")
	assert.Empty(t, engine.got)
}

func TestBuyActionBecomesOpenSignal(t *testing.T) {
	engine := &fakeEngine{outcome: models.Outcome{Status: models.StatusEntryExecuted}}
	store := &fakeStore{}
	h := newTestHandler(t, engine, store)

	rec := post(h, `{"symbol":"GOLD","action":"buy","stop_loss":1900.5,"size":2,"signal_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusEntryExecuted, decode(t, rec)["status"])

	require.Len(t, engine.got, 1)
	sig := engine.got[0]
	assert.Equal(t, models.IntentOpen, sig.Intent)
	assert.Equal(t, models.DirectionBuy, sig.Direction)
	assert.Equal(t, 1900.5, sig.StopLoss)
	assert.Equal(t, 2.0, sig.Size)

	// Success marks the signal as processed.
	assert.Equal(t, []string{"s1"}, store.marked)
}

func TestIntentVocabulary(t *testing.T) {
	engine := &fakeEngine{outcome: models.Outcome{Status: models.StatusPartialCloseExecuted}}
	h := newTestHandler(t, engine, &fakeStore{})

	rec := post(h, `{"symbol":"GOLD","intent":"close_partial","size":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, engine.got, 1)
	assert.Equal(t, models.IntentClosePartial, engine.got[0].Intent)
	assert.Equal(t, 0.5, engine.got[0].Size)
}

func TestDuplicateSignalIgnored(t *testing.T) {
	engine := &fakeEngine{}
	store := &fakeStore{processed: map[string]bool{"s1": true}}
	h := newTestHandler(t, engine, store)

	rec := post(h, `{"symbol":"GOLD","action":"buy","signal_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusDuplicateIgnored, decode(t, rec)["status"])
	// No broker work and no re-mark.
	assert.Empty(t, engine.got)
	assert.Empty(t, store.marked)
}

func TestNoSignalIDIsNeverDeduplicated(t *testing.T) {
	engine := &fakeEngine{outcome: models.Outcome{Status: models.StatusEntryExecuted}}
	store := &fakeStore{}
	h := newTestHandler(t, engine, store)

	for i := 0; i < 2; i++ {
		rec := post(h, `{"symbol":"GOLD","action":"buy"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, engine.got, 2)
}

func TestBrokerErrorIs500WithBrokerText(t *testing.T) {
	engine := &fakeEngine{err: &capital.RequestError{Status: 400, Body: `{"errorCode":"error.invalid.details"}`}}
	store := &fakeStore{}
	h := newTestHandler(t, engine, store)

	rec := post(h, `{"symbol":"GOLD","action":"buy","signal_id":"s1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "error.invalid.details")
	// Failures are not marked processed; the retry may succeed.
	assert.Empty(t, store.marked)
}

func TestUnknownIntentPassesThrough(t *testing.T) {
	engine := &fakeEngine{outcome: models.Outcome{Status: models.StatusUnknownIntent}}
	h := newTestHandler(t, engine, &fakeStore{})

	rec := post(h, `{"symbol":"GOLD","intent":"hedge"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusUnknownIntent, decode(t, rec)["status"])
}
