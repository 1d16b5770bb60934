// Package data loads raw jsonlines documents and hands them to the
// tensorizing collaborator.
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
)

// dialogGenres are skipped from training data on request; their
// conversational transcripts differ markedly from written text.
var dialogGenres = []string{"bc", "tc"}

// Options controls which documents are loaded
type Options struct {
	MaxSegmentLen int
	// NumEvalDocs caps dev and test documents per dataset; 0 keeps all.
	NumEvalDocs    int
	SkipDialogData bool
}

// Loader reads <data_dir>/<split>.<max_segment_len>.jsonlines files
type Loader struct {
	opts   Options
	logger *zap.Logger
}

// NewLoader creates a loader
func NewLoader(opts Options, logger *zap.Logger) *Loader {
	return &Loader{opts: opts, logger: logger}
}

// Path returns the jsonlines file of a dataset split
func (l *Loader) Path(ds domain.DatasetSpec, split domain.Split) string {
	return filepath.Join(ds.DataDir, fmt.Sprintf("%s.%d.jsonlines", split, l.opts.MaxSegmentLen))
}

// LoadSplit reads one split and applies the configured document caps
func (l *Loader) LoadSplit(ds domain.DatasetSpec, split domain.Split) ([]domain.RawDocument, error) {
	path := l.Path(ds, split)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.DataNotFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	docs, err := ReadJSONLines(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch split {
	case domain.SplitTrain:
		if l.opts.SkipDialogData {
			docs = withoutDialog(docs)
		}
		docs = truncate(docs, ds.NumTrainDocs)
	default:
		docs = truncate(docs, l.opts.NumEvalDocs)
	}

	l.logger.Debug("Loaded documents",
		zap.String("dataset", ds.Name),
		zap.String("split", string(split)),
		zap.Int("count", len(docs)),
	)
	return docs, nil
}

// Load reads the given splits of a dataset
func (l *Loader) Load(ds domain.DatasetSpec, splits ...domain.Split) (map[domain.Split][]domain.RawDocument, error) {
	out := make(map[domain.Split][]domain.RawDocument, len(splits))
	for _, split := range splits {
		docs, err := l.LoadSplit(ds, split)
		if err != nil {
			return nil, err
		}
		out[split] = docs
	}
	return out, nil
}

// ReadJSONLines decodes one document per line
func ReadJSONLines(r io.Reader) ([]domain.RawDocument, error) {
	dec := json.NewDecoder(r)
	var docs []domain.RawDocument
	for {
		var doc domain.RawDocument
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, doc)
	}
}

func withoutDialog(docs []domain.RawDocument) []domain.RawDocument {
	kept := docs[:0:0]
	for _, d := range docs {
		if !isDialog(d.DocKey) {
			kept = append(kept, d)
		}
	}
	return kept
}

func isDialog(docKey string) bool {
	for _, genre := range dialogGenres {
		if strings.HasPrefix(docKey, genre) {
			return true
		}
	}
	return false
}

func truncate(docs []domain.RawDocument, limit int) []domain.RawDocument {
	if limit > 0 && len(docs) > limit {
		return docs[:limit]
	}
	return docs
}
