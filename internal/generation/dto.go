// AngelaMos | 2026
// dto.go

package generation

import (
	"time"

	"github.com/promptstudio/api/internal/subscription"
)

type ImageToPromptRequest struct {
	ImageURL string `json:"image_url" validate:"required,url,max=2048"`
	Style    string `json:"style"     validate:"omitempty,max=100"`
}

type ConceptPromptRequest struct {
	Concept string `json:"concept" validate:"required,max=2000"`
	Style   string `json:"style"   validate:"omitempty,max=100"`
}

type ImageRequest struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
	N      int    `json:"n"      validate:"omitempty,min=1,max=4"`
	Size   string `json:"size"   validate:"omitempty,oneof=1024x1024 1792x1024 1024x1792"`
}

type EnhanceRequest struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

type VideoPromptRequest struct {
	Concept         string `json:"concept"          validate:"required,max=2000"`
	DurationSeconds int    `json:"duration_seconds" validate:"omitempty,min=1,max=120"`
}

// Result is what a generator returns: text for prompt kinds, URLs for images.
type Result struct {
	Text   string
	Images []string
}

type UsageInfo struct {
	Plan         string `json:"plan"`
	PromptsUsed  int    `json:"promptsUsed"`
	PromptsLimit int    `json:"promptsLimit"`
	Remaining    int    `json:"remaining"`
}

type GenerationResponse struct {
	ID     string    `json:"id,omitempty"`
	Kind   string    `json:"kind"`
	Output string    `json:"output,omitempty"`
	Images []string  `json:"images,omitempty"`
	Usage  UsageInfo `json:"usage"`
}

type PromptResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Units     int       `json:"units"`
	CreatedAt time.Time `json:"created_at"`
}

type ListParams struct {
	Kind     string
	Page     int
	PageSize int
}

func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func toUsageInfo(sub subscription.Subscription) UsageInfo {
	return UsageInfo{
		Plan:         sub.Plan,
		PromptsUsed:  sub.PromptsUsed,
		PromptsLimit: sub.PromptsLimit,
		Remaining:    sub.Remaining(),
	}
}

func ToPromptResponse(p *Prompt) PromptResponse {
	return PromptResponse{
		ID:        p.ID,
		Kind:      p.Kind,
		Input:     p.Input,
		Output:    p.Output,
		Units:     p.Units,
		CreatedAt: p.CreatedAt,
	}
}

func ToPromptResponseList(prompts []Prompt) []PromptResponse {
	out := make([]PromptResponse, 0, len(prompts))
	for i := range prompts {
		out = append(out, ToPromptResponse(&prompts[i]))
	}
	return out
}
