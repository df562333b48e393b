package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"signal_relay/internal/models"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFlatAndNestedAgree(t *testing.T) {
	flat := []byte(`{
		"dealId": "D123",
		"epic": "GOLD",
		"direction": "BUY",
		"size": 0.5,
		"stopLevel": 1900.5,
		"level": 1950.0
	}`)
	nested := []byte(`{
		"position": {
			"dealId": "D123",
			"direction": "BUY",
			"size": 0.5,
			"stopLevel": 1900.5,
			"level": 1950.0
		},
		"market": {"epic": "GOLD"}
	}`)

	var a, b positionEntry
	require.NoError(t, sonic.Unmarshal(flat, &a))
	require.NoError(t, sonic.Unmarshal(nested, &b))

	want := models.Position{
		DealID:    "D123",
		Epic:      "GOLD",
		Direction: models.DirectionBuy,
		Size:      0.5,
		StopLevel: 1900.5,
		Level:     1950.0,
	}
	assert.Equal(t, want, normalize(a))
	assert.Equal(t, want, normalize(b))
}

func TestNormalizePrefersFlatField(t *testing.T) {
	mixed := []byte(`{
		"dealId": "FLAT",
		"size": 2,
		"position": {"dealId": "NESTED", "size": 7, "direction": "SELL"},
		"market": {"epic": "EU50"}
	}`)

	var e positionEntry
	require.NoError(t, sonic.Unmarshal(mixed, &e))

	got := normalize(e)
	assert.Equal(t, "FLAT", got.DealID)
	assert.Equal(t, 2.0, got.Size)
	// Fields absent in the flat shape still fall back to the nested one.
	assert.Equal(t, models.DirectionSell, got.Direction)
	assert.Equal(t, "EU50", got.Epic)
}

func TestFindPositionAbsentIsNotAnError(t *testing.T) {
	stub := newStub()
	srv := newBrokerServer(t, stub, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"positions":[{"epic":"GOLD","dealId":"D1","direction":"BUY","size":1}]}`))
	})
	c := NewClient(srv.URL, "key", "id", "pw", time.Second)

	pos, err := c.FindPosition(context.Background(), "SILVER")
	require.NoError(t, err)
	assert.Nil(t, pos)

	pos, err = c.FindPosition(context.Background(), "GOLD")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "D1", pos.DealID)
}

func TestListPositionsFailureWrapped(t *testing.T) {
	stub := newStub()
	srv := newBrokerServer(t, stub, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	})
	c := NewClient(srv.URL, "key", "id", "pw", time.Second)

	_, err := c.ListPositions(context.Background())
	var fetchErr *PositionFetchError
	require.ErrorAs(t, err, &fetchErr)
}
