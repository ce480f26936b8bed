package service

import (
	"math"

	"github.com/sakif/time-estimator/internal/model"
)

// Stats summarises a member's history.
type Stats struct {
	Registries     int     `json:"registries"`
	TotalMinutes   int     `json:"totalMinutes"`
	AverageMinutes float64 `json:"averageMinutes"`
	// Minutes per difficulty point, over the whole history.
	MinutesPerPoint float64 `json:"minutesPerPoint"`
}

// ComputeStats returns zero Stats for an empty history.
func ComputeStats(history []model.HistoryRegistry) Stats {
	var st Stats
	points := 0
	for _, r := range history {
		st.Registries++
		st.TotalMinutes += r.TaskCompletitionTimeInMinutes
		points += r.TaskDificulty
	}
	if st.Registries == 0 {
		return st
	}
	st.AverageMinutes = round1(float64(st.TotalMinutes) / float64(st.Registries))
	if points > 0 {
		st.MinutesPerPoint = round1(float64(st.TotalMinutes) / float64(points))
	}
	return st
}

// Estimate basis values.
const (
	// BasisSameDifficulty: mean of registries with exactly this difficulty.
	BasisSameDifficulty = "same-difficulty"
	// BasisScaled: overall minutes per point times the difficulty.
	BasisScaled = "scaled"
)

type Estimate struct {
	Difficulty int     `json:"difficulty"`
	Minutes    float64 `json:"minutes"`
	Basis      string  `json:"basis"`
	SampleSize int     `json:"sampleSize"`
}

// EstimateFrom prefers registries of the same difficulty and falls back to
// scaling the member's overall pace. ok is false when history is empty.
func EstimateFrom(history []model.HistoryRegistry, difficulty int) (Estimate, bool) {
	if len(history) == 0 {
		return Estimate{}, false
	}

	same, sameMinutes := 0, 0
	points, minutes := 0, 0
	for _, r := range history {
		points += r.TaskDificulty
		minutes += r.TaskCompletitionTimeInMinutes
		if r.TaskDificulty == difficulty {
			same++
			sameMinutes += r.TaskCompletitionTimeInMinutes
		}
	}
	if same > 0 {
		return Estimate{
			Difficulty: difficulty,
			Minutes:    round1(float64(sameMinutes) / float64(same)),
			Basis:      BasisSameDifficulty,
			SampleSize: same,
		}, true
	}

	if points == 0 {
		return Estimate{}, false
	}
	return Estimate{
		Difficulty: difficulty,
		Minutes:    round1(float64(minutes) / float64(points) * float64(difficulty)),
		Basis:      BasisScaled,
		SampleSize: len(history),
	}, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
