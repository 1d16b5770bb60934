package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteimel/fast-coref/internal/domain"
)

// NewTestDocument creates a small document with one two-mention cluster and
// one singleton.
func NewTestDocument(docKey string) domain.RawDocument {
	return domain.RawDocument{
		DocKey:      docKey,
		Sentences:   [][]string{{"John", "saw", "Mary", "."}, {"He", "waved", "."}},
		Clusters:    []domain.Cluster{{{Start: 0, End: 0}, {Start: 4, End: 4}}, {{Start: 2, End: 2}}},
		SubtokenMap: []int{0, 1, 2, 3, 4, 5, 6},
		SentenceMap: []int{0, 0, 0, 0, 1, 1, 1},
	}
}

// NewTestDocuments creates n documents keyed <prefix>_<i>
func NewTestDocuments(prefix string, n int) []domain.RawDocument {
	docs := make([]domain.RawDocument, n)
	for i := range docs {
		docs[i] = NewTestDocument(fmt.Sprintf("%s_%d", prefix, i))
	}
	return docs
}

// WriteJSONLines writes docs to <dir>/<split>.<segLen>.jsonlines
func WriteJSONLines(t *testing.T, dir string, split domain.Split, segLen int, docs []domain.RawDocument) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, fmt.Sprintf("%s.%d.jsonlines", split, segLen))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, d := range docs {
		require.NoError(t, enc.Encode(d))
	}
	return path
}
