package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Draft is a review the learner has not submitted yet.
type Draft struct {
	Text       string
	Rating     int
	Completion float64
}

// Grade is the model's verdict on a draft.
type Grade struct {
	Score    float64
	Feedback string
}

// Grader 使用大模型为评价打分（0~1）。未配置模型时 Enabled 返回 false，
// 调用方应回退到启发式评分。
type Grader struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *slog.Logger
}

// NewGrader compiles the grading chain. A nil chatModel yields a disabled grader.
func NewGrader(ctx context.Context, chatModel model.ChatModel, logger *slog.Logger) (*Grader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Grader{logger: logger}
	if chatModel == nil {
		return g, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(graderSystemPrompt),
		schema.UserMessage(graderUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile review grader chain: %w", err)
	}

	g.chain = runnable
	return g, nil
}

// Enabled reports whether a model is wired.
func (g *Grader) Enabled() bool {
	return g != nil && g.chain != nil
}

// Grade asks the model to score a draft.
func (g *Grader) Grade(ctx context.Context, d Draft) (Grade, error) {
	if !g.Enabled() {
		return Grade{}, fmt.Errorf("review grader disabled")
	}

	input := map[string]any{
		"rating":     strconv.Itoa(d.Rating),
		"review":     strings.TrimSpace(d.Text),
		"completion": strconv.FormatFloat(d.Completion, 'f', 0, 64),
	}

	msg, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return Grade{}, fmt.Errorf("invoke review grader: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return Grade{}, fmt.Errorf("review grader returned empty output")
	}

	grade, err := parseGraderOutput(msg.Content)
	if err != nil {
		g.logger.Warn("review grader output unreadable", "error", err)
		return Grade{}, err
	}
	return grade, nil
}

type graderPayload struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

// parseGraderOutput 解析大模型返回的 JSON，允许前后夹带多余文本。
func parseGraderOutput(content string) (Grade, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return Grade{}, fmt.Errorf("missing json object")
	}

	var payload graderPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return Grade{}, err
	}
	if payload.Score == nil || math.IsNaN(*payload.Score) {
		return Grade{}, fmt.Errorf("missing score")
	}

	score := math.Max(0, math.Min(1, *payload.Score))
	return Grade{
		Score:    math.Round(score*1000) / 1000,
		Feedback: strings.TrimSpace(payload.Feedback),
	}, nil
}

const graderSystemPrompt = "You grade course reviews written by learners on a pay-per-minute learning marketplace. " +
	"A high quality review is specific about what was taught, constructive about what could improve, and consistent with the star rating and how much of the content the learner watched. " +
	"Vague praise, one-word reviews, and ratings that contradict the text score low. Low completion with strong claims lowers credibility.\n" +
	"Answer with one JSON object only, with the fields score (a number between 0 and 1) and feedback (one short sentence addressed to the learner). No other text."

const graderUserPrompt = "Star rating: {rating} of 5\nContent watched: {completion}%\n\nReview:\n{review}\n\nReturn the JSON."
