// Package history keeps the per-instrument close and volume series the
// signal and ranking code reads from.
package history

import (
	"errors"
	"fmt"
)

var ErrInsufficientHistory = errors.New("insufficient history")

// Series is an append-only sequence of closes and volumes for one
// instrument. Appends are amortized O(1) and any element can be addressed
// from the end in O(1).
type Series struct {
	closes  []float64
	volumes []float64
}

func NewSeries(capacity int) *Series {
	if capacity < 0 {
		capacity = 0
	}
	return &Series{
		closes:  make([]float64, 0, capacity),
		volumes: make([]float64, 0, capacity),
	}
}

func (s *Series) Append(px, volume float64) {
	s.closes = append(s.closes, px)
	s.volumes = append(s.volumes, volume)
}

func (s *Series) Len() int { return len(s.closes) }

// Last returns the most recent close.
func (s *Series) Last() (float64, error) {
	return s.Back(1)
}

// LastVolume returns the most recent volume.
func (s *Series) LastVolume() (float64, error) {
	if len(s.volumes) == 0 {
		return 0, fmt.Errorf("volume: have 0, need 1: %w", ErrInsufficientHistory)
	}
	return s.volumes[len(s.volumes)-1], nil
}

// Back returns the close n positions from the end; Back(1) is the latest.
func (s *Series) Back(n int) (float64, error) {
	if n < 1 || n > len(s.closes) {
		return 0, fmt.Errorf("back %d: have %d: %w", n, len(s.closes), ErrInsufficientHistory)
	}
	return s.closes[len(s.closes)-n], nil
}

// Window returns a copy of the last n closes, oldest first.
func (s *Series) Window(n int) ([]float64, error) {
	if n < 1 || n > len(s.closes) {
		return nil, fmt.Errorf("window %d: have %d: %w", n, len(s.closes), ErrInsufficientHistory)
	}
	out := make([]float64, n)
	copy(out, s.closes[len(s.closes)-n:])
	return out, nil
}

// Store holds one Series per instrument of a fixed universe.
type Store struct {
	series map[string]*Series
}

// NewStore pre-allocates a series for every instrument. capacity is a
// sizing hint, not a limit.
func NewStore(universe []string, capacity int) *Store {
	series := make(map[string]*Series, len(universe))
	for _, inst := range universe {
		series[inst] = NewSeries(capacity)
	}
	return &Store{series: series}
}

// Append adds a bar to the instrument's series. It reports false for an
// instrument outside the universe.
func (st *Store) Append(instrument string, px, volume float64) bool {
	s, ok := st.series[instrument]
	if !ok {
		return false
	}
	s.Append(px, volume)
	return true
}

// Window returns the last n closes of an instrument.
func (st *Store) Window(instrument string, n int) ([]float64, error) {
	s, ok := st.series[instrument]
	if !ok {
		return nil, fmt.Errorf("instrument %s: %w", instrument, ErrInsufficientHistory)
	}
	return s.Window(n)
}

// Series returns the instrument's series, or nil when it is not tracked.
func (st *Store) Series(instrument string) *Series {
	return st.series[instrument]
}

func (st *Store) Len(instrument string) int {
	s, ok := st.series[instrument]
	if !ok {
		return 0
	}
	return s.Len()
}
