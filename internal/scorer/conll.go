package scorer

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ksteimel/fast-coref/internal/domain"
)

var (
	beginDocumentRegex = regexp.MustCompile(`#begin document \((.*)\); part (\d+)`)
	corefResultsRegex  = regexp.MustCompile(`Coreference: Recall: \([0-9.]+ / [0-9.]+\) ([0-9.]+)%\tPrecision: \([0-9.]+ / [0-9.]+\) ([0-9.]+)%\tF1: ([0-9.]+)%`)
)

// DocPrediction is the predicted partition of one document together with
// the map from subtokens back to words.
type DocPrediction struct {
	DocKey      string
	Clusters    []domain.Cluster
	SubtokenMap []int
}

// DocKey joins a CoNLL document id and part number the way data files key
// their documents.
func DocKey(docID string, part int) string {
	return fmt.Sprintf("%s_%d", docID, part)
}

type annotation struct {
	cluster int
	other   int
}

type wordAnnotations struct {
	starts map[int][]int
	ends   map[int][]int
	words  map[int][]int
}

func annotate(p DocPrediction) (wordAnnotations, error) {
	starts := make(map[int][]annotation)
	ends := make(map[int][]annotation)
	words := make(map[int][]int)

	for id, cluster := range p.Clusters {
		for _, m := range cluster {
			if m.Start < 0 || m.End >= len(p.SubtokenMap) || m.Start > m.End {
				return wordAnnotations{}, fmt.Errorf("mention %v out of range in %s", m, p.DocKey)
			}
			start, end := p.SubtokenMap[m.Start], p.SubtokenMap[m.End]
			if start == end {
				words[start] = append(words[start], id)
				continue
			}
			starts[start] = append(starts[start], annotation{cluster: id, other: end})
			ends[end] = append(ends[end], annotation{cluster: id, other: start})
		}
	}

	// Longer mentions open first and close last.
	flatten := func(in map[int][]annotation) map[int][]int {
		out := make(map[int][]int, len(in))
		for word, anns := range in {
			sort.SliceStable(anns, func(i, j int) bool { return anns[i].other > anns[j].other })
			ids := make([]int, len(anns))
			for i, a := range anns {
				ids[i] = a.cluster
			}
			out[word] = ids
		}
		return out
	}
	return wordAnnotations{starts: flatten(starts), ends: flatten(ends), words: words}, nil
}

// WriteConll copies the gold CoNLL file from r to w, replacing the last
// column of every token row with the predicted coreference annotation.
func WriteConll(r io.Reader, w io.Writer, predictions []DocPrediction) error {
	byKey := make(map[string]wordAnnotations, len(predictions))
	for _, p := range predictions {
		anns, err := annotate(p)
		if err != nil {
			return err
		}
		byKey[p.DocKey] = anns
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	out := bufio.NewWriter(w)

	var (
		docKey  string
		current wordAnnotations
		word    int
	)
	for scanner.Scan() {
		line := scanner.Text()
		row := strings.Fields(line)
		switch {
		case len(row) == 0:
			out.WriteString("\n")
		case strings.HasPrefix(row[0], "#"):
			if m := beginDocumentRegex.FindStringSubmatch(line); m != nil {
				part, _ := strconv.Atoi(m[2])
				docKey = DocKey(m[1], part)
				anns, ok := byKey[docKey]
				if !ok {
					return fmt.Errorf("no prediction for document %s", docKey)
				}
				current = anns
				word = 0
			}
			out.WriteString(line)
			out.WriteString("\n")
		default:
			if len(row) < 2 {
				return fmt.Errorf("malformed row in %s: %q", docKey, line)
			}
			part, _ := strconv.Atoi(row[1])
			if DocKey(row[0], part) != docKey {
				return fmt.Errorf("row for %s found inside %s", DocKey(row[0], part), docKey)
			}
			var coref []string
			for _, id := range current.ends[word] {
				coref = append(coref, fmt.Sprintf("%d)", id))
			}
			for _, id := range current.words[word] {
				coref = append(coref, fmt.Sprintf("(%d)", id))
			}
			for _, id := range current.starts[word] {
				coref = append(coref, fmt.Sprintf("(%d", id))
			}
			if len(coref) == 0 {
				row[len(row)-1] = "-"
			} else {
				row[len(row)-1] = strings.Join(coref, "|")
			}
			out.WriteString(strings.Join(row, "   "))
			out.WriteString("\n")
			word++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read gold file: %w", err)
	}
	return out.Flush()
}

// ParseScore extracts recall, precision and F1 percentages from the
// official scorer's output.
func ParseScore(output string) (domain.MetricScore, error) {
	m := corefResultsRegex.FindStringSubmatch(output)
	if m == nil {
		return domain.MetricScore{}, fmt.Errorf("no coreference summary in scorer output")
	}
	var vals [3]float64
	for i := range vals {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return domain.MetricScore{}, fmt.Errorf("bad number %q in scorer output: %w", m[i+1], err)
		}
		vals[i] = v
	}
	return domain.MetricScore{Recall: vals[0], Precision: vals[1], FScore: vals[2]}, nil
}
