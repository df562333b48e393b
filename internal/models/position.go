package models

// Position is the canonical view of one open deal at the broker,
// produced by normalizing whichever response shape the positions
// endpoint returned. Never cached across signals.
type Position struct {
	DealID    string
	Epic      string
	Size      float64
	Direction Direction
	StopLevel float64 // 0 = no stop attached
	Level     float64 // open/reference price, 0 if the broker omitted it
}
