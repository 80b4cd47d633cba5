package models

// KnowledgeSnippet is one retrieved passage with its relevance score.
type KnowledgeSnippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// KnowledgeAnswer is the payload of the knowledge retrieval capability.
type KnowledgeAnswer struct {
	Query     string             `json:"query"`
	Answer    string             `json:"answer"`
	Sources   []string           `json:"sources"`
	Snippets  []KnowledgeSnippet `json:"snippets"`
	Truncated bool               `json:"truncated,omitempty"`
}
