package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/evidia-go-api/internal/dto"
	"github.com/noah-isme/evidia-go-api/internal/repository"
)

const resultVersionKey = "evidia:results:version"

// ResultService serves the evaluator's filtered results view, fronting the
// database projection with a redis cache when one is configured.
type ResultService interface {
	ResultInvalidator
	List(ctx context.Context, query dto.ResultQuery) ([]dto.ResultResponse, error)
}

type resultService struct {
	results repository.ResultRepository
	cache   *redis.Client
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewResultService constructs a ResultService. A nil redis client disables
// caching and every read hits the database.
func NewResultService(results repository.ResultRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ResultService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &resultService{
		results: results,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With().Str("component", "result_service").Logger(),
	}
}

func (s *resultService) List(ctx context.Context, query dto.ResultQuery) ([]dto.ResultResponse, error) {
	key := s.cacheKey(ctx, query)
	if key != "" {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var rows []dto.ResultResponse
			if err := json.Unmarshal([]byte(cached), &rows); err == nil {
				return rows, nil
			}
		}
	}

	rows, err := s.results.List(ctx, repository.ResultFilter{
		InstructorID: query.InstructorID,
		Score:        query.Score,
		From:         query.From,
		To:           query.To,
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ResultResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, dto.ResultResponse{
			LineID:     row.LineID,
			SessionID:  row.SessionID,
			Evidence:   row.EvidenceTitle,
			Instructor: row.InstructorName,
			Evaluator:  row.EvaluatorName,
			Score:      row.Score,
			Remark:     row.Remark,
			Status:     row.Status,
			Date:       row.GradedAt.Format("2006-01-02"),
		})
	}

	if key != "" {
		if encoded, err := json.Marshal(responses); err == nil {
			if err := s.cache.Set(ctx, key, encoded, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache results")
			}
		}
	}

	return responses, nil
}

// Invalidate bumps the version counter, orphaning every cached key. Stale
// entries age out through their TTL.
func (s *resultService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Incr(ctx, resultVersionKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate result cache")
	}
}

// cacheKey derives a versioned key for the query, or "" when caching is off
// or redis is unreachable.
func (s *resultService) cacheKey(ctx context.Context, query dto.ResultQuery) string {
	if s.cache == nil {
		return ""
	}

	version, err := s.cache.Get(ctx, resultVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return ""
	}

	instructor := uint(0)
	if query.InstructorID != nil {
		instructor = *query.InstructorID
	}
	score := ""
	if query.Score != nil {
		score = fmt.Sprintf("%.2f", *query.Score)
	}
	from, to := "", ""
	if query.From != nil {
		from = query.From.Format("2006-01-02")
	}
	if query.To != nil {
		to = query.To.Format("2006-01-02")
	}

	return fmt.Sprintf("evidia:results:v%d:i%d:s%s:f%s:t%s", version, instructor, score, from, to)
}
