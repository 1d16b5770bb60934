// Package domain contains the core entities shared by the training and
// evaluation components of fast-coref.
//
// This package defines:
//   - Mention spans, clusters and clustering actions
//   - Tensorized examples handed out by the data collaborator
//   - Training progress (TrainInfo) and the versioned checkpoint schema
//   - Evaluation results, prediction records and performance reports
//
// # Design Philosophy
//
// Domain types are persistence-agnostic. Checkpoint and report encodings
// live with the components that write them; the JSON tags here define the
// on-disk field names.
package domain
