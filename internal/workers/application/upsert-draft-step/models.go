package upsertdraftstep

import "encoding/json"

type Input struct {
	UserID          int64           `json:"userId"`
	Roles           []string        `json:"roles"`
	ApplicationType string          `json:"applicationType"`
	Step            string          `json:"step"`
	Data            json.RawMessage `json:"data"`
}

type Output struct {
	DraftID              string `json:"draftId"`
	Step                 string `json:"step"`
	CompletionPercentage int    `json:"completionPercentage"`
	UpdatedAt            string `json:"updatedAt"` // ISO 8601
}
