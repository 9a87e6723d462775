package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// candidateLimit bounds how many businesses one similarity run scores
// against. Candidates come from shared categories, so the cap rarely bites
// outside dense city-center categories.
const candidateLimit = 100

// SimilarityJob recomputes the outgoing similarity edges of one business.
// Deterministic: two runs over the same data produce the same edge set.
type SimilarityJob struct {
	engine       *Engine
	repo         Repository
	interactions interaction.Repository
	catalog      catalog.Repository
	logger       *zap.Logger
}

func NewSimilarityJob(engine *Engine, repo Repository, interactions interaction.Repository, catalogRepo catalog.Repository, logger *zap.Logger) *SimilarityJob {
	return &SimilarityJob{
		engine:       engine,
		repo:         repo,
		interactions: interactions,
		catalog:      catalogRepo,
		logger:       logger,
	}
}

// Handle is the queue entry point.
func (j *SimilarityJob) Handle(ctx context.Context, task *broker.Task) error {
	var payload broker.SimilarityTaskPayload
	if err := broker.DecodePayload(task, &payload); err != nil {
		j.logger.Error("Undecodable similarity payload",
			zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}
	return j.Run(ctx, payload.BusinessID)
}

// Run rebuilds the edge set for businessID and replaces it transactionally.
func (j *SimilarityJob) Run(ctx context.Context, businessID uuid.UUID) error {
	base, err := j.catalog.FindByID(ctx, businessID)
	if err != nil {
		if errors.Is(err, catalog.ErrBusinessNotFound) {
			// Business was removed after the job was queued.
			j.logger.Warn("Skipping similarity for missing business",
				zap.String("business_id", businessID.String()))
			return nil
		}
		return fmt.Errorf("failed to load business: %w", err)
	}

	categoryIDs := base.CategoryIDs()
	candidates, err := j.catalog.FindCandidatesSharingCategories(ctx, categoryIDs, base.ID, candidateLimit)
	if err != nil {
		return fmt.Errorf("failed to load candidates: %w", err)
	}

	edges, err := j.scoreCandidates(ctx, base, candidates)
	if err != nil {
		return err
	}

	if err := j.repo.ReplaceSimilarities(ctx, base.ID, edges); err != nil {
		return fmt.Errorf("failed to store similarities: %w", err)
	}

	j.logger.Info("Similarity recomputed",
		zap.String("business_id", base.ID.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("edges", len(edges)))
	return nil
}

func (j *SimilarityJob) scoreCandidates(ctx context.Context, base *catalog.Business, candidates []catalog.Business) ([]BusinessSimilarity, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	baseUsers, err := j.interactions.DistinctUserIDs(ctx, base.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load base user set: %w", err)
	}

	candidateIDs := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		candidateIDs[i] = c.ID
	}
	userSets, err := j.interactions.DistinctUserIDsForBusinesses(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate user sets: %w", err)
	}

	now := time.Now().UTC()
	baseCategories := base.CategoryIDs()
	edges := make([]BusinessSimilarity, 0, len(candidates))

	for _, candidate := range candidates {
		in := SimilarityInput{
			CategoriesA: baseCategories,
			CategoriesB: candidate.CategoryIDs(),
			LatA:        base.Latitude,
			LonA:        base.Longitude,
			LatB:        candidate.Latitude,
			LonB:        candidate.Longitude,
			UsersA:      baseUsers,
			UsersB:      userSets[candidate.ID],
		}

		score := j.engine.Similarity(in)
		if score <= SimilarityThreshold {
			continue
		}

		edges = append(edges, BusinessSimilarity{
			BusinessID:        base.ID,
			SimilarBusinessID: candidate.ID,
			Score:             score,
			CategoryScore:     j.engine.CategoryScore(in.CategoriesA, in.CategoriesB),
			LocationScore:     j.engine.LocationScore(in.LatA, in.LonA, in.LatB, in.LonB),
			BehaviorScore:     j.engine.BehaviorScore(in.UsersA, in.UsersB),
			CalculatedAt:      now,
		})
	}

	return edges, nil
}
