package types

// GenerateRequest and DraftRequest leave unset fields as they are in the
// current draft.
type GenerateRequest struct {
	Prompt      *string `json:"prompt"`
	AspectRatio *string `json:"aspectRatio"`
}

type DraftRequest struct {
	Prompt      *string `json:"prompt"`
	AspectRatio *string `json:"aspectRatio"`
}

type CredentialRequest struct {
	// APIKey is optional. When empty the server re-reads its configured source.
	APIKey string `json:"apiKey"`
}

type CredentialResponse struct {
	HasKey bool `json:"hasKey"`
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    int   `json:"status"`
	TimeStamp int64 `json:"timestamp"`
}
