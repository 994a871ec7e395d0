// AngelaMos | 2026
// dto.go

package user

import (
	"time"

	"github.com/promptstudio/api/internal/subscription"
)

type UpdateUserRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}

type UpdateAdminRequest struct {
	IsAdmin *bool `json:"is_admin" validate:"required"`
}

type OverrideSubscriptionRequest struct {
	Plan         string `json:"plan"          validate:"required,max=100"`
	BillingCycle string `json:"billing_cycle" validate:"omitempty,oneof=monthly yearly lifetime"`
}

type UserResponse struct {
	ID           string                    `json:"id"`
	Email        string                    `json:"email"`
	Name         string                    `json:"name"`
	IsAdmin      bool                      `json:"is_admin"`
	Subscription subscription.Subscription `json:"subscription"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// UsageResponse is what the client polls before offering a generation.
// Remaining is -1 for lifetime plans.
type UsageResponse struct {
	Plan         string     `json:"plan"`
	Status       string     `json:"status"`
	PromptsUsed  int        `json:"promptsUsed"`
	PromptsLimit int        `json:"promptsLimit"`
	Remaining    int        `json:"remaining"`
	CanGenerate  bool       `json:"canGenerate"`
	Reason       string     `json:"reason,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type ListUsersParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search"`
	Plan     string `json:"plan"`
}

func (p *ListUsersParams) Normalize() {
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

func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		IsAdmin:      u.IsAdmin,
		Subscription: u.Subscription,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func ToUserResponseList(users []User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, ToUserResponse(&users[i]))
	}
	return responses
}

func ToUsageResponse(sub subscription.Subscription) UsageResponse {
	decision := subscription.Check(sub, 1)
	return UsageResponse{
		Plan:         sub.Plan,
		Status:       sub.Status,
		PromptsUsed:  sub.PromptsUsed,
		PromptsLimit: sub.PromptsLimit,
		Remaining:    sub.Remaining(),
		CanGenerate:  decision.Allowed,
		Reason:       decision.Reason,
		ExpiresAt:    sub.ExpiresAt,
	}
}
