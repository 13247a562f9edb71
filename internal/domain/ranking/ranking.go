// Package ranking aggregates per-user scores into one ranked recommendation
// per event.
//
// Pairs are grouped by event id. The total score of an event is, by
// default, the mean preference score over every user scored against it.
// Each metric is averaged over the users that have a valid score for that
// metric, so a missing sub-score never drags another metric down. Output is
// sorted by total descending and ties keep encounter order.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/circlematch/internal/domain/model"
)

const (
	summaryEntries   = 2
	summarySeparator = "; "
	summaryEllipsis  = "..."
	unknownUser      = "UnknownUser"
)

// TotalPolicy selects how the per-event total score is computed.
type TotalPolicy string

const (
	// TotalPreference uses the mean preference score.
	TotalPreference TotalPolicy = "preference"
	// TotalAllMetrics uses the mean of the four per-metric means.
	TotalAllMetrics TotalPolicy = "all_metrics"
)

// Valid reports whether p is a known policy.
func (p TotalPolicy) Valid() bool {
	return p == TotalPreference || p == TotalAllMetrics
}

// Option configures Rank.
type Option func(*settings)

type settings struct {
	total TotalPolicy
}

// WithTotal selects the total score policy.
func WithTotal(p TotalPolicy) Option {
	return func(s *settings) {
		if p.Valid() {
			s.total = p
		}
	}
}

type accumulator struct {
	rec        model.Recommendation
	prefSum    float64
	prefCount  int
	sums       map[model.Metric]float64
	counts     map[model.Metric]int
	reasonings []string
}

// Rank groups pairs by event id and returns one recommendation per event.
func Rank(pairs []model.PairScore, opts ...Option) []model.Recommendation {
	cfg := settings{total: TotalPreference}
	for _, opt := range opts {
		opt(&cfg)
	}

	order := make([]string, 0)
	groups := make(map[string]*accumulator)

	for _, p := range pairs {
		eventID := p.Event.ID()
		if eventID == "" {
			continue
		}

		acc, ok := groups[eventID]
		if !ok {
			acc = &accumulator{
				rec: model.Recommendation{
					EventID:   eventID,
					Origin:    p.Origin,
					EventData: p.Event,
				},
				sums:   make(map[model.Metric]float64, len(model.Metrics)),
				counts: make(map[model.Metric]int, len(model.Metrics)),
			}
			groups[eventID] = acc
			order = append(order, eventID)
		}
		acc.add(p)
	}

	out := make([]model.Recommendation, 0, len(order))
	for _, id := range order {
		acc := groups[id]
		if acc.rec.Contributors == 0 {
			continue
		}
		out = append(out, acc.finish(cfg))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScoreTotal > out[j].ScoreTotal
	})
	return out
}

func (a *accumulator) add(p model.PairScore) {
	a.rec.Contributors++

	for _, m := range model.Metrics {
		s := p.Score.Get(m)
		if s == nil || !s.InRange() {
			continue
		}
		a.sums[m] += float64(s.Score)
		a.counts[m]++
	}

	pref := p.Score.Preference
	if pref == nil || !pref.InRange() {
		return
	}
	a.prefSum += float64(pref.Score)
	a.prefCount++

	userID := p.User.ID()
	if userID == "" {
		userID = unknownUser
	}
	a.reasonings = append(a.reasonings,
		fmt.Sprintf("User %s: Pref score %d - %s", userID, pref.Score, pref.Reasoning))
}

func (a *accumulator) finish(cfg settings) model.Recommendation {
	rec := a.rec
	rec.Scores = make(map[model.Metric]float64, len(model.Metrics))
	for _, m := range model.Metrics {
		rec.Scores[m] = mean(a.sums[m], a.counts[m])
	}

	switch cfg.total {
	case TotalAllMetrics:
		var sum float64
		for _, m := range model.Metrics {
			sum += rec.Scores[m]
		}
		rec.ScoreTotal = round2(sum / float64(len(model.Metrics)))
	default:
		rec.ScoreTotal = mean(a.prefSum, a.prefCount)
	}

	rec.Reasoning = summarize(a.reasonings, rec.Contributors)
	return rec
}

// summarize joins the first two reasoning lines and marks truncation when
// more users contributed than are shown.
func summarize(reasonings []string, contributors int) string {
	shown := reasonings
	if len(shown) > summaryEntries {
		shown = shown[:summaryEntries]
	}
	out := strings.Join(shown, summarySeparator)
	if contributors > summaryEntries {
		out += summaryEllipsis
	}
	return out
}

func mean(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return round2(sum / float64(count))
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
