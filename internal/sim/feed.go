package sim

import (
	"math"
	"slices"
	"sort"
)

type FeedOptions struct {
	Public       bool
	ShowThinking bool
}

// FilterFeed selects the public or private log and returns it newest first.
// Private feeds hide thinking messages unless ShowThinking is set.
func FilterFeed(msgs []Message, opts FeedOptions) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsPublic != opts.Public {
			continue
		}
		if !opts.Public && m.IsThinking && !opts.ShowThinking {
			continue
		}
		out = append(out, m)
	}
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// ImpactStars maps an impact score to a 0-5 star rating.
func ImpactStars(impact int) int {
	if impact <= 0 {
		return 0
	}
	return min(5, int(math.Ceil(float64(impact)/20)))
}
