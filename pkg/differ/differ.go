// Package differ computes changes between two panel memberships. It powers
// both the archive trail written during panel updates and the
// reconciliation reports that compare a patient's tested version against
// the current one.
package differ

import (
	"sort"

	"github.com/genomicsops/panelmap/pkg/types"
)

// ConfidenceChange records a gene whose membership survived between two
// versions but whose confidence tier moved.
type ConfidenceChange struct {
	Old types.ConfidenceTier `json:"old"`
	New types.ConfidenceTier `json:"new"`
}

// Changeset describes how a panel's membership changed between two
// versions. Added holds genes only present in the newer membership, Removed
// genes only present in the older one, and ConfidenceChanged genes present
// in both at different tiers. The three sets are disjoint.
type Changeset struct {
	Added             map[string]types.ConfidenceTier `json:"added"`
	Removed           map[string]types.ConfidenceTier `json:"removed"`
	ConfidenceChanged map[string]ConfidenceChange     `json:"confidence_changed"`
}

// NewChangeset creates an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{
		Added:             make(map[string]types.ConfidenceTier),
		Removed:           make(map[string]types.ConfidenceTier),
		ConfidenceChanged: make(map[string]ConfidenceChange),
	}
}

// HasChanges returns true if the changeset contains any changes.
func (c *Changeset) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.ConfidenceChanged) > 0
}

// Total returns the number of genes affected by the changeset.
func (c *Changeset) Total() int {
	return len(c.Added) + len(c.Removed) + len(c.ConfidenceChanged)
}

// AddedGenes returns the added gene identifiers in sorted order.
func (c *Changeset) AddedGenes() []string {
	return sortedKeys(c.Added)
}

// RemovedGenes returns the removed gene identifiers in sorted order.
func (c *Changeset) RemovedGenes() []string {
	return sortedKeys(c.Removed)
}

// ChangedGenes returns the confidence-changed gene identifiers in sorted
// order.
func (c *Changeset) ChangedGenes() []string {
	genes := make([]string, 0, len(c.ConfidenceChanged))
	for g := range c.ConfidenceChanged {
		genes = append(genes, g)
	}
	sort.Strings(genes)
	return genes
}

// Compare computes the changeset between an older and a newer membership.
// Comparing any membership against itself yields an empty changeset, and
// swapping the arguments swaps Added with Removed.
func Compare(older, newer types.Membership) *Changeset {
	cs := NewChangeset()

	for gene, newTier := range newer {
		oldTier, ok := older[gene]
		if !ok {
			cs.Added[gene] = newTier
			continue
		}
		if oldTier != newTier {
			cs.ConfidenceChanged[gene] = ConfidenceChange{Old: oldTier, New: newTier}
		}
	}

	for gene, oldTier := range older {
		if _, ok := newer[gene]; !ok {
			cs.Removed[gene] = oldTier
		}
	}

	return cs
}

func sortedKeys(m map[string]types.ConfidenceTier) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
