package domain

// Example is one document in tensorized form. It is produced by the data
// collaborator and never modified afterwards.
type Example struct {
	DocKey      string     `json:"doc_key"`
	Sentences   [][]string `json:"sentences,omitempty"`
	Clusters    []Cluster  `json:"clusters"`
	SubtokenMap []int      `json:"subtoken_map,omitempty"`
	SentenceMap []int      `json:"sentence_map,omitempty"`

	// Payload carries the tensorized document for the model. It is
	// opaque here and never written to logs.
	Payload any `json:"-"`
}

// RawDocument is a document as read from a jsonlines data file
type RawDocument struct {
	DocKey      string     `json:"doc_key"`
	Sentences   [][]string `json:"sentences"`
	Clusters    []Cluster  `json:"clusters"`
	SubtokenMap []int      `json:"subtoken_map,omitempty"`
	SentenceMap []int      `json:"sentence_map,omitempty"`
}
