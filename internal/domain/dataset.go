package domain

// Split names a partition of a dataset
type Split string

const (
	SplitTrain Split = "train"
	SplitDev   Split = "dev"
	SplitTest  Split = "test"
)

// IsValid checks if the split is valid
func (s Split) IsValid() bool {
	switch s {
	case SplitTrain, SplitDev, SplitTest:
		return true
	}
	return false
}

// CanonicalClusterThreshold lists the minimum cluster size used for each
// dataset's standard reported evaluation.
var CanonicalClusterThreshold = map[string]int{
	"litbank":                  1,
	"ontonotes":                2,
	"preco":                    1,
	"wikicoref":                2,
	"quizbowl":                 1,
	"character_identification": 1,
	"gap":                      1,
	"wsc":                      1,
}

// DatasetSpec describes one dataset taking part in an experiment
type DatasetSpec struct {
	Name     string `json:"name"`
	DataDir  string `json:"dataDir"`
	ConllDir string `json:"conllDir,omitempty"`

	// NumTrainDocs caps the training documents loaded for this dataset; 0
	// keeps all of them.
	NumTrainDocs int `json:"numTrainDocs,omitempty"`

	// ClusterThreshold is the canonical threshold in effect for this run.
	ClusterThreshold int `json:"clusterThreshold"`
}
