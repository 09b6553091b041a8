package respond

import (
	"strings"

	"github.com/museworks/velatura/pkg/types"
)

// Word timing here is an approximation for lip-sync consumers: there is no
// phoneme alignment. Each word's duration grows linearly with its character
// count, words are laid out sequentially with a small fixed gap, and the
// total estimate is the sum. Downstream consumers needing phoneme-accurate
// timing must align against the actual audio themselves.
const (
	baseWordSeconds = 0.18
	perCharSeconds  = 0.04
	interWordGap    = 0.06
)

// EstimateTimings lays out per-word start/end times for text and returns them
// with the estimated total duration in seconds. Empty text yields no timings
// and a zero duration.
func EstimateTimings(text string) ([]types.WordTiming, float64) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, 0
	}

	timings := make([]types.WordTiming, len(words))
	cursor := 0.0
	for i, w := range words {
		dur := baseWordSeconds + perCharSeconds*float64(len(w))
		timings[i] = types.WordTiming{Word: w, Start: cursor, End: cursor + dur}
		cursor += dur
		if i < len(words)-1 {
			cursor += interWordGap
		}
	}
	return timings, cursor
}
