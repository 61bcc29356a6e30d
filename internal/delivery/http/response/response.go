package response

import (
	"time"

	"github.com/user/prodsearch-service/internal/domain"
)

// ResearchResponse is the DTO for one completed run, mirroring
// domain.RunResult.
type ResearchResponse struct {
	ID            string                           `json:"id"`
	ArticleNumber string                           `json:"article_number,omitempty"`
	ProductName   string                           `json:"product_name"`
	Properties    map[string]domain.PropertyResult `json:"properties"`
	Failures      []domain.SourceFailure           `json:"failures"`
	CreatedAt     time.Time                        `json:"created_at"`
}

func FromRunResult(r *domain.RunResult) ResearchResponse {
	failures := r.Failures
	if failures == nil {
		failures = []domain.SourceFailure{}
	}
	return ResearchResponse{
		ID:            r.ID,
		ArticleNumber: r.Identity.ArticleNumber,
		ProductName:   r.Identity.ProductName,
		Properties:    r.Properties,
		Failures:      failures,
		CreatedAt:     r.CreatedAt,
	}
}
