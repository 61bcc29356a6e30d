package request

// PropertyRequest describes one property the caller wants answered.
type PropertyRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	ExpectedFormat string `json:"expected_format,omitempty"`
	Required       bool   `json:"required,omitempty"`
}

// CandidateRequest is an optional caller-supplied source page. When any are
// given the service skips its own search.
type CandidateRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type ResearchRequest struct {
	ArticleNumber string             `json:"article_number,omitempty"`
	ProductName   string             `json:"product_name"`
	Properties    []PropertyRequest  `json:"properties"`
	Candidates    []CandidateRequest `json:"candidates,omitempty"`
}
