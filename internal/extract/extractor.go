package extract

import (
	"context"

	"github.com/user/prodsearch-service/internal/domain"
)

// Usage carries per-call accounting forwarded to the audit sink. It is not
// part of extraction correctness.
type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Extractor is the black-box structured-extraction collaborator. It accepts
// cleaned source text plus the property schema and returns a best-effort
// value per property. Any shape mismatch or parse failure is treated by the
// caller as "nothing extracted".
type Extractor interface {
	Extract(ctx context.Context, text string, schema []domain.PropertySpec) (map[string]string, Usage, error)
}
