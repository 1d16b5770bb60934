package coref

import (
	"fmt"

	"github.com/ksteimel/fast-coref/internal/domain"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
)

// MentionIndex maps each mention to the index of its cluster in the slice it
// was built from.
type MentionIndex map[domain.Span]int

// ReconstructClusters replays an action sequence over the aligned mention
// list and returns the resulting partition.
//
// Clusters are emitted in a fixed order: clusters closed by an overwrite and
// untracked singletons in the order they were produced, followed by clusters
// still held in memory in the order their slot was first used.
func ReconstructClusters(actions []domain.Action, mentions []domain.Span) ([]domain.Cluster, error) {
	if len(actions) != len(mentions) {
		return nil, apperrors.InvalidAction(
			fmt.Sprintf("got %d actions for %d mentions", len(actions), len(mentions)))
	}

	var closed []domain.Cluster
	memory := make(map[int]domain.Cluster)
	var slotOrder []int

	for i, action := range actions {
		mention := mentions[i]
		switch action.Kind {
		case domain.ActionAttach:
			cluster, ok := memory[action.Target]
			if !ok {
				return nil, apperrors.InvalidAction(
					fmt.Sprintf("action %d attaches to empty slot %d", i, action.Target))
			}
			memory[action.Target] = append(cluster, mention)
		case domain.ActionOpen:
			if cluster, ok := memory[action.Target]; ok {
				closed = append(closed, cluster)
			} else {
				slotOrder = append(slotOrder, action.Target)
			}
			memory[action.Target] = domain.Cluster{mention}
		case domain.ActionNew:
			closed = append(closed, domain.Cluster{mention})
		case domain.ActionIgnore:
		default:
			return nil, apperrors.InvalidAction(
				fmt.Sprintf("action %d has unknown kind %q", i, action.Kind))
		}
	}

	clusters := closed
	for _, slot := range slotOrder {
		clusters = append(clusters, memory[slot])
	}
	return clusters, nil
}

// MentionToCluster drops every cluster with fewer than threshold mentions
// and indexes the survivors by mention.
func MentionToCluster(clusters []domain.Cluster, threshold int) ([]domain.Cluster, MentionIndex) {
	kept := make([]domain.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if len(c) >= threshold {
			kept = append(kept, c)
		}
	}

	index := make(MentionIndex)
	for i, c := range kept {
		for _, m := range c {
			index[m] = i
		}
	}
	return kept, index
}
