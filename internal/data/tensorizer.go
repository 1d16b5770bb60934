package data

import (
	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
)

// Tensorizer converts raw documents into model-ready examples
type Tensorizer interface {
	Tensorize(docs []domain.RawDocument, training bool) ([]*domain.Example, error)
}

// TensorizerFactory builds a tensorizer for a model's tokenizer
type TensorizerFactory func(tokenizer model.Tokenizer, removeSingletons bool) Tensorizer

// Passthrough copies documents into examples without a payload. Models
// that tokenize on their own, such as the oracle, use it.
type Passthrough struct {
	RemoveSingletons bool
}

// NewPassthrough is a TensorizerFactory
func NewPassthrough(_ model.Tokenizer, removeSingletons bool) Tensorizer {
	return Passthrough{RemoveSingletons: removeSingletons}
}

// Tensorize copies each document. Singleton clusters are dropped from
// training examples when RemoveSingletons is set.
func (p Passthrough) Tensorize(docs []domain.RawDocument, training bool) ([]*domain.Example, error) {
	examples := make([]*domain.Example, len(docs))
	for i, d := range docs {
		clusters := d.Clusters
		if training && p.RemoveSingletons {
			clusters = dropSingletons(clusters)
		}
		examples[i] = &domain.Example{
			DocKey:      d.DocKey,
			Sentences:   d.Sentences,
			Clusters:    clusters,
			SubtokenMap: d.SubtokenMap,
			SentenceMap: d.SentenceMap,
		}
	}
	return examples, nil
}

func dropSingletons(clusters []domain.Cluster) []domain.Cluster {
	kept := make([]domain.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if len(c) > 1 {
			kept = append(kept, c)
		}
	}
	return kept
}
