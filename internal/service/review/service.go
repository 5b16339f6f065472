package review

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murphlabs/murph/backend/internal/analysis/bonus"
	"github.com/murphlabs/murph/backend/internal/analysis/quality"
	"github.com/murphlabs/murph/backend/internal/model/ledger"
	"github.com/murphlabs/murph/backend/internal/model/review"
	"github.com/murphlabs/murph/backend/internal/service/ai"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

const (
	MinRating = 1
	MaxRating = 5
	// Unrated 只在预览中合法：用户打字时可能还没选星级
	Unrated = 0

	SourceAI        = "ai"
	SourceHeuristic = "heuristic"
)

// Backend submits reviews for scoring.
type Backend interface {
	SubmitReview(ctx context.Context, req review.Request) (review.BackendResult, error)
}

// Store keeps the local copy of submitted reviews.
type Store interface {
	SaveReview(ctx context.Context, record *ledger.ReviewRecord) error
	GetReviewBySession(ctx context.Context, sessionID string) (*ledger.ReviewRecord, error)
}

// Grader grades drafts with a language model.
type Grader interface {
	Enabled() bool
	Grade(ctx context.Context, d ai.Draft) (ai.Grade, error)
}

// Config 汇总评价服务的依赖，Store 与 Grader 可为空。
type Config struct {
	Backend Backend
	Store   Store
	Grader  Grader
	Logger  *slog.Logger
}

// Service 负责评价的校验、提交与奖励计算。
type Service struct {
	backend Backend
	store   Store
	grader  Grader
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: cfg.Backend,
		store:   cfg.Store,
		grader:  cfg.Grader,
		logger:  logger,
		now:     time.Now,
	}
}

// Validate checks a review form before anything is sent.
func Validate(req review.Request) error {
	const op = "review.Validate"
	if strings.TrimSpace(req.SessionID) == "" {
		return apperr.New(apperr.ValidationFailed, op, "session id is required")
	}
	if req.Rating < MinRating || req.Rating > MaxRating {
		return apperr.New(apperr.ValidationFailed, op, "please select a rating between 1 and 5")
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperr.New(apperr.ValidationFailed, op, "please write a review")
	}
	return nil
}

// Submit validates, sends the review to the backend, and derives the bonus
// from the returned quality score.
func (s *Service) Submit(ctx context.Context, req review.Request) (*review.Submission, error) {
	const op = "review.Submit"

	req.Text = strings.TrimSpace(req.Text)
	if err := Validate(req); err != nil {
		return nil, err
	}

	result, err := s.backend.SubmitReview(ctx, req)
	if err != nil {
		s.logger.Warn("review submission failed", "session_id", req.SessionID, "kind", apperr.KindOf(err), "error", err)
		return nil, err
	}

	score := clampScore(result.QualityScore)
	credits, err := bonus.Calculate(score)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	label := bonus.Classify(score)

	reviewID := result.ReviewID
	if reviewID == "" {
		reviewID = uuid.NewString()
	}

	sub := &review.Submission{
		ReviewID:           reviewID,
		SessionID:          req.SessionID,
		UserID:             req.UserID,
		Rating:             req.Rating,
		Text:               req.Text,
		QualityScore:       score,
		Bonus:              credits,
		Label:              string(label),
		Feedback:           bonus.Feedback(label),
		AppliedBonusAmount: result.AppliedBonusAmount,
		CreatedAt:          s.now().UTC(),
	}

	if s.store != nil {
		if err := s.store.SaveReview(ctx, toRecord(sub)); err != nil {
			// 后端已接受评价，本地账本写入失败只记录日志
			s.logger.Error("persist review failed", "review_id", sub.ReviewID, "error", err)
		}
	}

	s.logger.Info("review submitted",
		"review_id", sub.ReviewID,
		"session_id", sub.SessionID,
		"score", sub.QualityScore,
		"bonus", sub.Bonus,
	)
	return sub, nil
}

// Preview grades a draft and reports the bonus it would earn.
// completion is the watched percentage and only informs the AI grader.
// rating may be Unrated while the learner has not picked stars yet.
func (s *Service) Preview(ctx context.Context, text string, rating int, completion float64) (review.Preview, error) {
	const op = "review.Preview"

	text = strings.TrimSpace(text)
	if text == "" {
		return review.Preview{}, apperr.New(apperr.ValidationFailed, op, "please write a review")
	}
	if rating != Unrated && (rating < MinRating || rating > MaxRating) {
		return review.Preview{}, apperr.New(apperr.ValidationFailed, op, "rating must be between 1 and 5, or 0 when not chosen yet")
	}

	score, feedback, source := s.grade(ctx, text, rating, completion)
	credits, err := bonus.Calculate(score)
	if err != nil {
		return review.Preview{}, apperr.Wrap(apperr.Internal, op, err)
	}
	label := bonus.Classify(score)
	if feedback == "" {
		feedback = bonus.Feedback(label)
	}

	return review.Preview{
		QualityScore: score,
		Bonus:        credits,
		Label:        string(label),
		Feedback:     feedback,
		Source:       source,
	}, nil
}

func (s *Service) grade(ctx context.Context, text string, rating int, completion float64) (float64, string, string) {
	if s.grader != nil && s.grader.Enabled() {
		g, err := s.grader.Grade(ctx, ai.Draft{Text: text, Rating: rating, Completion: completion})
		if err == nil {
			return clampScore(g.Score), g.Feedback, SourceAI
		}
		s.logger.Warn("ai grading failed, using heuristic", "error", err)
	}

	assessment := quality.Analyze(text, rating)
	return clampScore(assessment.Score), "", SourceHeuristic
}

// GetBySession returns the stored review for a session.
func (s *Service) GetBySession(ctx context.Context, sessionID string) (*review.Submission, error) {
	const op = "review.GetBySession"
	if s.store == nil {
		return nil, apperr.New(apperr.NotFound, op, "review storage is not configured")
	}
	record, err := s.store.GetReviewBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	label := bonus.Label(record.Label)
	return &review.Submission{
		ReviewID:           record.ReviewID,
		SessionID:          record.SessionID,
		UserID:             record.StudentID,
		Rating:             record.Rating,
		Text:               record.Text,
		QualityScore:       record.QualityScore,
		Bonus:              record.Bonus,
		Label:              record.Label,
		Feedback:           bonus.Feedback(label),
		AppliedBonusAmount: record.AppliedBonusAmount,
		CreatedAt:          record.CreatedAt,
	}, nil
}

func toRecord(sub *review.Submission) *ledger.ReviewRecord {
	return &ledger.ReviewRecord{
		ReviewID:           sub.ReviewID,
		SessionID:          sub.SessionID,
		StudentID:          sub.UserID,
		Rating:             sub.Rating,
		Text:               sub.Text,
		QualityScore:       sub.QualityScore,
		Bonus:              sub.Bonus,
		Label:              sub.Label,
		AppliedBonusAmount: sub.AppliedBonusAmount,
		CreatedAt:          sub.CreatedAt,
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
