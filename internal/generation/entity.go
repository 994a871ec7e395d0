// AngelaMos | 2026
// entity.go

package generation

import (
	"time"
)

const (
	KindImageToPrompt = "image_to_prompt"
	KindConceptPrompt = "concept_prompt"
	KindImage         = "image"
	KindEnhance       = "enhance"
	KindVideoPrompt   = "video_prompt"
)

// Prompt is one saved generation in a user's history.
type Prompt struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Input     string    `db:"input"`
	Output    string    `db:"output"`
	Units     int       `db:"units"`
	CreatedAt time.Time `db:"created_at"`
}
