package recommendation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/internal/domain/scoring"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownScenario = errors.New("unknown recommendation scenario")
	ErrMissingUser     = errors.New("user id is required")
)

// Profile build bounds.
const (
	topCategoryCount    = 5
	recentBusinessCount = 10
	recentEventCount    = 50
	profileWindow       = 30 * 24 * time.Hour

	// locationBoost scales the location affinity term added on top of the
	// hybrid score when the user has a geo centroid.
	locationBoost = 10.0

	// candidatePool bounds how many category-affine businesses one
	// personalized ranking considers.
	candidatePool = 100
)

// ResultCache is the slice of the cache the read side needs. Entries are
// JSON documents; the cache type keys the TTL and the hit/miss accounting.
type ResultCache interface {
	Fetch(ctx context.Context, key, cacheType string, out interface{}) bool
	Store(ctx context.Context, key, cacheType string, v interface{}) error
}

// Cache types used by the read side.
const (
	cacheTypeProfile         = "user_profile"
	cacheTypeRecommendations = "recommendations"
	cacheTypeTrending        = "trending"
)

// Service is the personalization read side: interaction profiles and ranked
// business lists, all served cache-first.
type Service interface {
	ProfileFast(ctx context.Context, userID uuid.UUID) (*UserProfileFast, error)
	ProfileFull(ctx context.Context, userID uuid.UUID) (*UserProfileFull, error)

	// Recommendations dispatches on scenario; see the Scenario constants.
	Recommendations(ctx context.Context, userID uuid.UUID, scenario string, limit int) ([]RankedBusiness, error)
	Personalized(ctx context.Context, userID uuid.UUID, limit int) ([]RankedBusiness, error)
	Trending(ctx context.Context, area string, limit int) ([]RankedBusiness, error)
	Similar(ctx context.Context, businessID uuid.UUID, limit int) ([]RankedBusiness, error)

	// WarmUserCaches rebuilds the user's profiles and default lists so the
	// next read is a hit. Called from the queue after important actions.
	WarmUserCaches(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	interactions interaction.Repository
	catalog      catalog.Repository
	scores       scoring.Repository
	engine       *scoring.Engine
	cache        ResultCache
	logger       *zap.Logger
}

func NewService(interactions interaction.Repository, catalogRepo catalog.Repository, scores scoring.Repository, engine *scoring.Engine, resultCache ResultCache, logger *zap.Logger) Service {
	return &service{
		interactions: interactions,
		catalog:      catalogRepo,
		scores:       scores,
		engine:       engine,
		cache:        resultCache,
		logger:       logger,
	}
}

// writeCached stores v under key, best effort.
func (s *service) writeCached(ctx context.Context, key, cacheType string, v interface{}) {
	if err := s.cache.Store(ctx, key, cacheType, v); err != nil {
		s.logger.Debug("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *service) ProfileFast(ctx context.Context, userID uuid.UUID) (*UserProfileFast, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}

	key := cache.UserProfileFastKey(userID)
	var cached UserProfileFast
	if s.cache.Fetch(ctx, key, cacheTypeProfile, &cached) {
		return &cached, nil
	}

	profile, err := s.buildProfileFast(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.writeCached(ctx, key, cacheTypeProfile, profile)
	return profile, nil
}

func (s *service) buildProfileFast(ctx context.Context, userID uuid.UUID) (*UserProfileFast, error) {
	topCategories, err := s.interactions.TopCategoryIDsForUser(ctx, userID, topCategoryCount)
	if err != nil {
		return nil, fmt.Errorf("failed to load category affinity: %w", err)
	}

	recentBusinesses, err := s.interactions.RecentBusinessIDsForUser(ctx, userID, recentBusinessCount)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent businesses: %w", err)
	}

	profile := &UserProfileFast{
		UserID:            userID,
		TopCategoryIDs:    topCategories,
		RecentBusinessIDs: recentBusinesses,
		GeneratedAt:       time.Now().UTC(),
	}

	lat, lon, ok, err := s.interactions.UserGeoCentroid(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load geo centroid: %w", err)
	}
	if ok {
		profile.CentroidLat = &lat
		profile.CentroidLon = &lon
	}

	return profile, nil
}

func (s *service) ProfileFull(ctx context.Context, userID uuid.UUID) (*UserProfileFull, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}

	key := cache.UserProfileFullKey(userID)
	var cached UserProfileFull
	if s.cache.Fetch(ctx, key, cacheTypeProfile, &cached) {
		return &cached, nil
	}

	fast, err := s.buildProfileFast(ctx, userID)
	if err != nil {
		return nil, err
	}

	typeCounts, err := s.interactions.CountByTypeForUser(ctx, userID, time.Now().UTC().Add(-profileWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load type counts: %w", err)
	}
	counts := make(map[interaction.ActionType]int64, len(typeCounts))
	for _, tc := range typeCounts {
		counts[tc.InteractionType] = tc.Count
	}

	recent, err := s.interactions.RecentByUser(ctx, userID, recentEventCount)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}

	profile := &UserProfileFull{
		UserProfileFast: *fast,
		CountsByType:    counts,
		RecentEvents:    recent,
	}

	s.writeCached(ctx, key, cacheTypeProfile, profile)
	return profile, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (s *service) Recommendations(ctx context.Context, userID uuid.UUID, scenario string, limit int) ([]RankedBusiness, error) {
	limit = clampLimit(limit)

	switch scenario {
	case "", ScenarioPersonalized:
		return s.Personalized(ctx, userID, limit)
	case ScenarioTrending:
		return s.Trending(ctx, "", limit)
	case ScenarioSimilar:
		return s.similarToRecent(ctx, userID, limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, scenario)
	}
}

func (s *service) Personalized(ctx context.Context, userID uuid.UUID, limit int) ([]RankedBusiness, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	limit = clampLimit(limit)

	key := cache.UserPersonalizedKey(userID, limit)
	var cached []RankedBusiness
	if s.cache.Fetch(ctx, key, cacheTypeRecommendations, &cached) {
		return cached, nil
	}

	results, err := s.buildPersonalized(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	s.writeCached(ctx, key, cacheTypeRecommendations, results)
	return results, nil
}

func (s *service) buildPersonalized(ctx context.Context, userID uuid.UUID, limit int) ([]RankedBusiness, error) {
	profile, err := s.ProfileFast(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Cold start: no interaction history to rank on.
	if !profile.HasSignal() {
		return s.Trending(ctx, "", limit)
	}

	candidates, err := s.catalog.FindCandidatesSharingCategories(ctx, profile.TopCategoryIDs, uuid.Nil, candidatePool)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return s.Trending(ctx, "", limit)
	}

	candidateIDs := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		candidateIDs[i] = c.ID
	}
	trendScores, err := s.scores.TrendScoresFor(ctx, scoring.ItemTypeBusiness, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load trend scores: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(profile.RecentBusinessIDs))
	for _, id := range profile.RecentBusinessIDs {
		seen[id] = true
	}

	results := make([]RankedBusiness, 0, len(candidates))
	for _, business := range candidates {
		if seen[business.ID] {
			continue
		}

		var trend *float64
		if score, ok := trendScores[business.ID]; ok {
			trend = &score
		}
		score := scoring.HybridScore(trend, business.Rating)

		if profile.CentroidLat != nil && profile.CentroidLon != nil {
			score += locationBoost * s.engine.LocationScore(
				*profile.CentroidLat, *profile.CentroidLon,
				business.Latitude, business.Longitude)
		}

		results = append(results, RankedBusiness{
			Business: business,
			Score:    score,
			Reason:   ReasonPersonal,
		})
	}

	sortRanked(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *service) Trending(ctx context.Context, area string, limit int) ([]RankedBusiness, error) {
	limit = clampLimit(limit)

	key := fmt.Sprintf("trending:%s:%d", area, limit)
	var cached []RankedBusiness
	if s.cache.Fetch(ctx, key, cacheTypeTrending, &cached) {
		return cached, nil
	}

	results, err := s.buildTrending(ctx, area, limit)
	if err != nil {
		return nil, err
	}

	s.writeCached(ctx, key, cacheTypeTrending, results)
	return results, nil
}

func (s *service) buildTrending(ctx context.Context, area string, limit int) ([]RankedBusiness, error) {
	snapshots, err := s.scores.TopTrending(ctx, scoring.ItemTypeBusiness, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load trending snapshots: %w", err)
	}

	results := make([]RankedBusiness, 0, limit)
	if len(snapshots) > 0 {
		ids := make([]uuid.UUID, len(snapshots))
		scoreByID := make(map[uuid.UUID]float64, len(snapshots))
		for i, snap := range snapshots {
			ids[i] = snap.ItemID
			scoreByID[snap.ItemID] = snap.TrendScore
		}

		businesses, err := s.catalog.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load trending businesses: %w", err)
		}

		for _, business := range businesses {
			if business.ApprovalStatus != catalog.ApprovalApproved {
				continue
			}
			if area != "" && business.LocationArea != area {
				continue
			}
			results = append(results, RankedBusiness{
				Business: business,
				Score:    scoreByID[business.ID],
				Reason:   ReasonTrending,
			})
		}
		sortRanked(results)
		if len(results) > limit {
			results = results[:limit]
		}
	}

	// Pad with top-rated businesses scored through the rating fallback so a
	// quiet day still yields a full list.
	if len(results) < limit {
		present := make(map[uuid.UUID]bool, len(results))
		for _, r := range results {
			present[r.Business.ID] = true
		}

		topRated, err := s.catalog.TopRatedApproved(ctx, area, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load top rated: %w", err)
		}
		for _, business := range topRated {
			if len(results) >= limit {
				break
			}
			if present[business.ID] {
				continue
			}
			results = append(results, RankedBusiness{
				Business: business,
				Score:    scoring.HybridScore(nil, business.Rating),
				Reason:   ReasonTopRated,
			})
		}
	}

	return results, nil
}

func (s *service) Similar(ctx context.Context, businessID uuid.UUID, limit int) ([]RankedBusiness, error) {
	limit = clampLimit(limit)

	edges, err := s.scores.TopSimilar(ctx, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load similarity edges: %w", err)
	}
	if len(edges) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(edges))
	scoreByID := make(map[uuid.UUID]float64, len(edges))
	for i, edge := range edges {
		ids[i] = edge.SimilarBusinessID
		scoreByID[edge.SimilarBusinessID] = edge.Score
	}

	businesses, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load similar businesses: %w", err)
	}

	results := make([]RankedBusiness, 0, len(businesses))
	for _, business := range businesses {
		if business.ApprovalStatus != catalog.ApprovalApproved {
			continue
		}
		results = append(results, RankedBusiness{
			Business: business,
			Score:    scoreByID[business.ID],
			Reason:   ReasonSimilar,
		})
	}

	sortRanked(results)
	return results, nil
}

// similarToRecent seeds the similar scenario with the user's most recently
// visited business.
func (s *service) similarToRecent(ctx context.Context, userID uuid.UUID, limit int) ([]RankedBusiness, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}

	key := cache.UserRecommendationsKey(userID, ScenarioSimilar, limit)
	var cached []RankedBusiness
	if s.cache.Fetch(ctx, key, cacheTypeRecommendations, &cached) {
		return cached, nil
	}

	recent, err := s.interactions.RecentBusinessIDsForUser(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent businesses: %w", err)
	}
	if len(recent) == 0 {
		return s.Trending(ctx, "", limit)
	}

	results, err := s.Similar(ctx, recent[0], limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return s.Trending(ctx, "", limit)
	}

	s.writeCached(ctx, key, cacheTypeRecommendations, results)
	return results, nil
}

func (s *service) WarmUserCaches(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrMissingUser
	}

	// Each builder writes through its own cache key; the calls just force
	// regeneration after the eager invalidation.
	if _, err := s.ProfileFast(ctx, userID); err != nil {
		return fmt.Errorf("failed to warm fast profile: %w", err)
	}
	if _, err := s.ProfileFull(ctx, userID); err != nil {
		return fmt.Errorf("failed to warm full profile: %w", err)
	}
	if _, err := s.Personalized(ctx, userID, DefaultLimit); err != nil {
		return fmt.Errorf("failed to warm personalized list: %w", err)
	}

	s.logger.Debug("User caches warmed", zap.String("user_id", userID.String()))
	return nil
}

// sortRanked orders by score descending with id as tiebreak so equal scores
// rank deterministically.
func sortRanked(results []RankedBusiness) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Business.ID.String() < results[j].Business.ID.String()
	})
}
