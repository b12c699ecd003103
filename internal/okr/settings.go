package okr

import (
	"fmt"
	"time"
)

// Thresholds are the lower bounds (inclusive) of each display label.
type Thresholds struct {
	Ahead          int `json:"ahead" yaml:"ahead"`
	OnTrack        int `json:"on_track" yaml:"on_track"`
	NeedsAttention int `json:"needs_attention" yaml:"needs_attention"`
}

// Settings is the configuration passed explicitly to the engine.
type Settings struct {
	Thresholds Thresholds
	// Location defines what a calendar day is for cycle arithmetic.
	Location *time.Location
	// MaxDepth caps the company→department→individual chain.
	MaxDepth int
}

// DefaultThresholds returns the 80/60/40 label boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Ahead: 80, OnTrack: 60, NeedsAttention: 40}
}

// DefaultSettings returns UTC calendar days, default thresholds and a depth of 3.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: DefaultThresholds(),
		Location:   time.UTC,
		MaxDepth:   3,
	}
}

// Validate checks that thresholds are strictly descending and within 0..100.
func (s Settings) Validate() error {
	t := s.Thresholds
	if t.Ahead > 100 || t.NeedsAttention < 0 {
		return fmt.Errorf("thresholds must be within 0..100")
	}
	if !(t.Ahead > t.OnTrack && t.OnTrack > t.NeedsAttention) {
		return fmt.Errorf("thresholds must be descending: ahead > on_track > needs_attention")
	}
	if s.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1")
	}
	return nil
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s Settings) maxDepth() int {
	if s.MaxDepth <= 0 {
		return 3
	}
	return s.MaxDepth
}
