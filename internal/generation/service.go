// AngelaMos | 2026
// service.go

package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/metrics"
	"github.com/promptstudio/api/internal/subscription"
)

const (
	systemImageToPrompt = "Describe the image as a detailed text-to-image prompt. " +
		"Cover subject, composition, lighting, palette and style. Reply with the prompt only."
	systemConceptPrompt = "Turn the concept into a detailed text-to-image prompt. " +
		"Reply with the prompt only."
	systemEnhance = "Rewrite the prompt to be more vivid and specific without changing " +
		"its intent. Reply with the prompt only."
	systemVideoPrompt = "Turn the concept into a shot-by-shot video generation prompt. " +
		"Reply with the prompt only."
)

// Gate charges and refunds prompt units on the user's subscription.
type Gate interface {
	Reserve(ctx context.Context, userID string, n int) (*subscription.Subscription, error)
	Release(
		ctx context.Context,
		userID string,
		n int,
		reserved *subscription.Subscription,
	) error
}

type Service struct {
	gate      Gate
	generator Generator
	repo      Repository
	metrics   metrics.Recorder
}

func NewService(
	gate Gate,
	generator Generator,
	repo Repository,
	recorder metrics.Recorder,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		gate:      gate,
		generator: generator,
		repo:      repo,
		metrics:   recorder,
	}
}

func (s *Service) ImageToPrompt(
	ctx context.Context,
	userID string,
	req ImageToPromptRequest,
) (*GenerationResponse, error) {
	in := ChatInput{
		System:   withStyle(systemImageToPrompt, req.Style),
		User:     "Write a prompt that would recreate this image.",
		ImageURL: req.ImageURL,
	}
	return s.chat(ctx, userID, KindImageToPrompt, req.ImageURL, in)
}

func (s *Service) ConceptPrompt(
	ctx context.Context,
	userID string,
	req ConceptPromptRequest,
) (*GenerationResponse, error) {
	in := ChatInput{
		System: withStyle(systemConceptPrompt, req.Style),
		User:   req.Concept,
	}
	return s.chat(ctx, userID, KindConceptPrompt, req.Concept, in)
}

func (s *Service) Enhance(
	ctx context.Context,
	userID string,
	req EnhanceRequest,
) (*GenerationResponse, error) {
	in := ChatInput{
		System: systemEnhance,
		User:   req.Prompt,
	}
	return s.chat(ctx, userID, KindEnhance, req.Prompt, in)
}

func (s *Service) VideoPrompt(
	ctx context.Context,
	userID string,
	req VideoPromptRequest,
) (*GenerationResponse, error) {
	user := req.Concept
	if req.DurationSeconds > 0 {
		user = fmt.Sprintf("%s\n\nTarget length: %d seconds.", req.Concept, req.DurationSeconds)
	}
	in := ChatInput{
		System: systemVideoPrompt,
		User:   user,
	}
	return s.chat(ctx, userID, KindVideoPrompt, req.Concept, in)
}

// Image charges one unit per requested image.
func (s *Service) Image(
	ctx context.Context,
	userID string,
	req ImageRequest,
) (*GenerationResponse, error) {
	n := req.N
	if n == 0 {
		n = 1
	}

	return s.run(ctx, userID, KindImage, n, req.Prompt,
		func(ctx context.Context) (Result, error) {
			urls, err := s.generator.Images(ctx, req.Prompt, n, req.Size)
			return Result{Images: urls}, err
		},
	)
}

func (s *Service) History(
	ctx context.Context,
	userID string,
	params ListParams,
) ([]Prompt, int, error) {
	if userID == "" {
		return nil, 0, core.UnauthorizedError("")
	}
	return s.repo.ListByUser(ctx, userID, params)
}

func (s *Service) chat(
	ctx context.Context,
	userID, kind, input string,
	in ChatInput,
) (*GenerationResponse, error) {
	return s.run(ctx, userID, kind, 1, input,
		func(ctx context.Context) (Result, error) {
			text, err := s.generator.Chat(ctx, in)
			return Result{Text: text}, err
		},
	)
}

// run reserves units before calling the model and gives them back if the
// call fails, so only successful generations count against the allowance.
func (s *Service) run(
	ctx context.Context,
	userID, kind string,
	units int,
	input string,
	call func(ctx context.Context) (Result, error),
) (*GenerationResponse, error) {
	if userID == "" {
		return nil, core.UnauthorizedError("")
	}

	ctx, span := core.StartSpan(ctx, "generation."+kind,
		attribute.Int("generation.units", units),
	)
	defer span.End()

	sub, err := s.gate.Reserve(ctx, userID, units)
	if err != nil {
		if errors.Is(err, core.ErrLimitReached) {
			s.metrics.GateDecision(false)
			slog.InfoContext(ctx, "generation denied",
				"user_id", userID,
				"kind", kind,
				"error", err,
			)
		}
		return nil, err
	}
	s.metrics.GateDecision(true)

	result, err := call(ctx)
	if err != nil {
		s.metrics.Generation(kind, "error")
		core.SetSpanError(ctx, err)

		releaseCtx := context.WithoutCancel(ctx)
		if relErr := s.gate.Release(releaseCtx, userID, units, sub); relErr != nil {
			slog.ErrorContext(ctx, "failed to release prompts",
				"user_id", userID,
				"units", units,
				"error", relErr,
			)
		}

		slog.WarnContext(ctx, "generation failed",
			"user_id", userID,
			"kind", kind,
			"error", err,
		)
		return nil, core.UpstreamError("generation failed, please try again")
	}
	s.metrics.Generation(kind, "success")
	core.AddSpanEvent(ctx, "generation.completed",
		attribute.String("kind", kind),
		attribute.Int("units", units),
	)

	resp := &GenerationResponse{
		Kind:   kind,
		Output: result.Text,
		Images: result.Images,
		Usage:  toUsageInfo(*sub),
	}

	record := &Prompt{
		ID:     uuid.New().String(),
		UserID: userID,
		Kind:   kind,
		Input:  input,
		Output: outputText(result),
		Units:  units,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		slog.WarnContext(ctx, "failed to save prompt history",
			"user_id", userID,
			"kind", kind,
			"error", err,
		)
	} else {
		resp.ID = record.ID
	}

	return resp, nil
}

func withStyle(system, style string) string {
	if style = strings.TrimSpace(style); style != "" {
		return system + " Use a " + style + " style."
	}
	return system
}

func outputText(r Result) string {
	if len(r.Images) > 0 {
		return strings.Join(r.Images, "\n")
	}
	return r.Text
}
