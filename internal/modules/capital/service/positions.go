package service

import (
	"context"
	"net/http"

	"signal_relay/internal/models"

	"github.com/bytedance/sonic"
)

// The positions endpoint has returned two shapes over time: a flat record,
// and a record with the deal under "position" and the instrument under
// "market". positionEntry holds both; normalize prefers the flat field.
type positionEntry struct {
	DealID    string  `json:"dealId"`
	Epic      string  `json:"epic"`
	Direction string  `json:"direction"`
	Size      float64 `json:"size"`
	StopLevel float64 `json:"stopLevel"`
	Level     float64 `json:"level"`

	Position *struct {
		DealID    string  `json:"dealId"`
		Epic      string  `json:"epic"`
		Direction string  `json:"direction"`
		Size      float64 `json:"size"`
		StopLevel float64 `json:"stopLevel"`
		Level     float64 `json:"level"`
	} `json:"position"`
	Market *struct {
		Epic string `json:"epic"`
	} `json:"market"`
}

type positionsResponse struct {
	Positions []positionEntry `json:"positions"`
}

func normalize(e positionEntry) models.Position {
	p := models.Position{
		DealID:    e.DealID,
		Epic:      e.Epic,
		Direction: models.Direction(e.Direction),
		Size:      e.Size,
		StopLevel: e.StopLevel,
		Level:     e.Level,
	}
	if e.Position != nil {
		if p.DealID == "" {
			p.DealID = e.Position.DealID
		}
		if p.Epic == "" {
			p.Epic = e.Position.Epic
		}
		if p.Direction == "" {
			p.Direction = models.Direction(e.Position.Direction)
		}
		if p.Size == 0 {
			p.Size = e.Position.Size
		}
		if p.StopLevel == 0 {
			p.StopLevel = e.Position.StopLevel
		}
		if p.Level == 0 {
			p.Level = e.Position.Level
		}
	}
	if p.Epic == "" && e.Market != nil {
		p.Epic = e.Market.Epic
	}
	return p
}

// ListPositions fetches and normalizes every open position on the account.
func (c *Client) ListPositions(ctx context.Context) ([]models.Position, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/positions", nil)
	if err != nil {
		return nil, &PositionFetchError{Err: err}
	}

	var wrap positionsResponse
	if err := sonic.Unmarshal(resp.Body, &wrap); err != nil {
		return nil, &PositionFetchError{Err: err}
	}

	out := make([]models.Position, 0, len(wrap.Positions))
	for _, e := range wrap.Positions {
		out = append(out, normalize(e))
	}
	return out, nil
}

// FindPosition returns the first open position on the given epic, or nil
// when there is none. nil is a valid outcome, not an error.
func (c *Client) FindPosition(ctx context.Context, epic string) (*models.Position, error) {
	positions, err := c.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Epic == epic {
			return &positions[i], nil
		}
	}
	return nil, nil
}
