package scoring

import (
	"math"

	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/google/uuid"
)

// Similarity blend weights. They sum to 1.0 exactly, so the combined score
// stays in [0,1] without relying on the cap.
const (
	categoryWeight = 0.4
	locationWeight = 0.3
	behaviorWeight = 0.3

	// SimilarityThreshold: pairs scoring at or below this are not persisted.
	// Storage pruning policy, not part of the scoring contract.
	SimilarityThreshold = 0.1
)

// Location score shape: full credit within nearKm, zero beyond farKm,
// linear in between.
const (
	earthRadiusKm = 6371.0
	nearKm        = 5.0
	farKm         = 50.0
)

// Trend score composition.
const (
	trendDecayFactor = 0.9
	growthTermWeight = 10.0
	velocityWeight   = 5.0

	// minVelocityBuckets: below this many distinct hourly buckets the
	// regression is too noisy to mean anything, so velocity is zero.
	minVelocityBuckets = 3
)

// trendingWeights is the per-action weight table for the trending score.
// Narrower than the ingestion default table on purpose: only these types
// feed the trend signal.
var trendingWeights = map[interaction.ActionType]float64{
	interaction.ActionView:             1.0,
	interaction.ActionClick:            1.5,
	interaction.ActionFavorite:         3.0,
	interaction.ActionPhoneCall:        5.0,
	interaction.ActionDirectionRequest: 2.5,
	interaction.ActionShare:            3.5,
	interaction.ActionReview:           4.0,
	interaction.ActionCollectionAdd:    4.5,
}

// Engine computes similarity and trending scores. Pure and stateless: no
// I/O, identical inputs produce identical outputs.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// SimilarityInput carries everything needed to score one business pair.
type SimilarityInput struct {
	CategoriesA []uuid.UUID
	CategoriesB []uuid.UUID
	LatA, LonA  float64
	LatB, LonB  float64
	UsersA      []uuid.UUID
	UsersB      []uuid.UUID
}

// Similarity blends category overlap, geographic proximity and shared-user
// behavior into a single score in [0,1].
func (e *Engine) Similarity(in SimilarityInput) float64 {
	score := categoryWeight*e.CategoryScore(in.CategoriesA, in.CategoriesB) +
		locationWeight*e.LocationScore(in.LatA, in.LonA, in.LatB, in.LonB) +
		behaviorWeight*e.BehaviorScore(in.UsersA, in.UsersB)

	return math.Min(score, 1.0)
}

// CategoryScore is the Jaccard index of the two category-id sets. Zero when
// either set is empty.
func (e *Engine) CategoryScore(a, b []uuid.UUID) float64 {
	return jaccard(a, b)
}

// BehaviorScore is the Jaccard index of the sets of users who interacted
// with each business, any interaction type.
func (e *Engine) BehaviorScore(usersA, usersB []uuid.UUID) float64 {
	return jaccard(usersA, usersB)
}

// LocationScore maps geodesic distance to [0,1]: 1.0 within 5 km, 0.0 at
// 50 km or more, linear interpolation between.
func (e *Engine) LocationScore(latA, lonA, latB, lonB float64) float64 {
	distance := HaversineKm(latA, lonA, latB, lonB)

	switch {
	case distance <= nearKm:
		return 1.0
	case distance >= farKm:
		return 0.0
	default:
		return 1.0 - (distance-nearKm)/(farKm-nearKm)
	}
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degToRad(lat2 - lat1)
	dLon := degToRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degToRad(lat1))*math.Cos(degToRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// jaccard computes |A∩B| / |A∪B| over uuid sets, 0 when either is empty.
// Inputs may contain duplicates; they are deduplicated here.
func jaccard(a, b []uuid.UUID) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	setB := make(map[uuid.UUID]bool, len(b))
	for _, id := range b {
		setB[id] = true
	}

	intersection := 0
	for id := range setA {
		if setB[id] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// TrendingInput carries the per-business aggregates for one scoring run.
type TrendingInput struct {
	// CountsByType covers the trailing 7 days.
	CountsByType map[interaction.ActionType]int64
	// TodayCount and YesterdayCount are calendar-day totals.
	TodayCount     int64
	YesterdayCount int64
	// HourBuckets covers the trailing 24h grouped by elapsed hour
	// (0 = most recent). Empty hours are absent.
	HourBuckets []interaction.HourBucket
}

// TrendingResult is the computed trend snapshot for one business.
type TrendingResult struct {
	TrendScore        float64
	WeightedScore     float64
	GrowthRate        float64
	Velocity          float64
	TotalInteractions int64
	TodayInteractions int64
}

// Trending computes the trend score. The result is unbounded and unit-less;
// only relative ordering within one run is meaningful.
func (e *Engine) Trending(in TrendingInput) TrendingResult {
	var weighted float64
	var total int64
	for actionType, count := range in.CountsByType {
		total += count
		if w, ok := trendingWeights[actionType]; ok {
			weighted += float64(count) * w
		}
	}

	growth := GrowthRate(in.TodayCount, in.YesterdayCount)
	velocity := Velocity(in.HourBuckets)

	return TrendingResult{
		TrendScore:        weighted*trendDecayFactor + growth*growthTermWeight + velocity*velocityWeight,
		WeightedScore:     weighted,
		GrowthRate:        growth,
		Velocity:          velocity,
		TotalInteractions: total,
		TodayInteractions: in.TodayCount,
	}
}

// GrowthRate is the day-over-day relative change. A zero yesterday is a
// deliberate edge-case policy, not a guard against a bug: any activity after
// a silent day counts as 100% growth.
func GrowthRate(today, yesterday int64) float64 {
	if yesterday == 0 {
		if today > 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(today-yesterday) / float64(yesterday)
}

// Velocity is the least-squares slope of interaction count against time
// over the trailing 24h hourly buckets. Buckets are keyed by elapsed hours
// before now, so the regression runs on the negated hour to make a positive
// slope mean accelerating engagement. Zero when fewer than three distinct
// hours have data.
func Velocity(buckets []interaction.HourBucket) float64 {
	if len(buckets) < minVelocityBuckets {
		return 0.0
	}

	n := float64(len(buckets))
	var sumX, sumY, sumXY, sumXX float64
	for _, b := range buckets {
		x := -float64(b.Hour)
		y := float64(b.Count)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0.0
	}

	return (n*sumXY - sumX*sumY) / denominator
}

// HybridScore blends the trend score with the catalog rating at query time:
// businesses with no trend snapshot fall back to a rating-derived
// pseudo-score so they still rank.
func HybridScore(trendScore *float64, rating float64) float64 {
	if trendScore != nil {
		return *trendScore
	}
	return rating * 20
}
