package external

import (
	"context"

	"github.com/gravilog-risk-core/internal/domain"
)

// NoopRetriever is the default knowledge retriever: no external knowledge store
// is configured, so no passages are supplied.
type NoopRetriever struct{}

// Retrieve implements domain.KnowledgeRetriever.
func (NoopRetriever) Retrieve(context.Context, *domain.SymptomState) ([]domain.Passage, error) {
	return nil, nil
}
