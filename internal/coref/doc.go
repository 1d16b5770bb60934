// Package coref turns clustering action sequences into entity clusters and
// scores them against gold clusters.
//
// The package is pure: it holds no global state and every function returns
// the same result for the same input. Metrics follow the CoNLL-2012
// evaluation protocol (MUC, B-cubed and entity-based CEAF with an optimal
// cluster alignment).
package coref
