package client

import (
	"context"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// KnowledgeClient queries the document retrieval backend.
type KnowledgeClient struct {
	backend *Backend
}

func NewKnowledgeClient(backend *Backend) *KnowledgeClient {
	return &KnowledgeClient{backend: backend}
}

type knowledgeRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type knowledgeResponse struct {
	Snippets []models.KnowledgeSnippet `json:"snippets"`
}

// Query returns up to topK snippets for query, in backend order.
func (c *KnowledgeClient) Query(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error) {
	var resp knowledgeResponse
	if err := c.backend.postJSON(ctx, "/query", knowledgeRequest{Query: query, TopK: topK}, &resp); err != nil {
		return nil, err
	}
	return resp.Snippets, nil
}
