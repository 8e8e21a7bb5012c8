// Package growth derives a momentum percentage for a trend by comparing it
// with its most recent history snapshot.
package growth

import (
	"math"

	"github.com/kalambet/trendsync/internal/trend"
)

const (
	// DefaultRankWeight is the score awarded per rank position gained.
	DefaultRankWeight = 5.0
	// DefaultRankBound caps the rank-based score in both directions.
	DefaultRankBound = 100.0
)

// Calculator computes growth rates. The zero value is not usable; use New.
type Calculator struct {
	rankWeight float64
	rankBound  float64
}

// New returns a Calculator with the default rank scaling.
func New() *Calculator {
	return &Calculator{rankWeight: DefaultRankWeight, rankBound: DefaultRankBound}
}

// Rate returns the growth of current relative to previous.
//
// With a usable previous play count the result is the percentage change in
// plays, rounded to two decimals and not clamped. Otherwise rank movement is
// scored: each position gained is worth rankWeight, bounded by ±rankBound.
// A nil previous snapshot yields 0.
func (c *Calculator) Rate(current trend.Item, previous *trend.Snapshot) float64 {
	if previous == nil {
		return 0
	}

	if previous.PlayCount > 0 && current.PlayCount > 0 {
		pct := float64(current.PlayCount-previous.PlayCount) / float64(previous.PlayCount) * 100
		return round2(pct)
	}

	if previous.Rank <= 0 || current.Rank <= 0 {
		return 0
	}
	score := float64(previous.Rank-current.Rank) * c.rankWeight
	return math.Max(-c.rankBound, math.Min(c.rankBound, score))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
