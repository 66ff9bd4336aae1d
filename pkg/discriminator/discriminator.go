// Package discriminator groups sampled candidates by semantic equivalence,
// using an LLM as the equivalence judge, and reports a winner once one
// group has opened up the configured vote margin over every other group.
//
// Comparisons are against each group's representative only — the first
// candidate that formed the group — not every member, and equivalence is
// not forced to be transitive across groups (matching the original
// implementation; see find_group in discriminator.py).
package discriminator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
)

// Discriminator classifies candidates into semantic groups for one voting
// session. It is not safe to reuse across unrelated tasks without Reset.
type Discriminator struct {
	client llm.Client

	mu              sync.Mutex
	groups          map[string]*model.SemanticGroup
	order           []string
	comparisonCache map[cacheKey]bool
}

type cacheKey struct {
	a, b string
}

// New builds a Discriminator backed by client.
func New(client llm.Client) *Discriminator {
	return &Discriminator{
		client:          client,
		groups:          make(map[string]*model.SemanticGroup),
		comparisonCache: make(map[cacheKey]bool),
	}
}

// Compare asks whether codeA and codeB are semantically equivalent,
// memoising the result bidirectionally so a later call in either order is
// free.
func (d *Discriminator) Compare(ctx context.Context, codeA, codeB, taskContext string) (bool, error) {
	key := cacheKeyFor(codeA, codeB)

	d.mu.Lock()
	if cached, ok := d.comparisonCache[key]; ok {
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	result, err := d.client.CompareSemantic(ctx, codeA, codeB, taskContext)
	if err != nil {
		return false, fmt.Errorf("discriminator: compare: %w", err)
	}

	d.mu.Lock()
	d.comparisonCache[key] = result
	d.comparisonCache[cacheKeyFor(codeB, codeA)] = result
	d.mu.Unlock()

	return result, nil
}

func cacheKeyFor(a, b string) cacheKey {
	return cacheKey{a: strings.TrimSpace(a), b: strings.TrimSpace(b)}
}

// FindGroup returns the first existing group whose representative is
// semantically equivalent to candidate, or nil if none matches.
func (d *Discriminator) FindGroup(ctx context.Context, candidate *model.Candidate, taskContext string) (*model.SemanticGroup, error) {
	d.mu.Lock()
	order := append([]string(nil), d.order...)
	d.mu.Unlock()

	for _, id := range order {
		d.mu.Lock()
		group := d.groups[id]
		d.mu.Unlock()
		if group == nil {
			continue
		}

		equivalent, err := d.Compare(ctx, candidate.Content, group.Representative.Content, taskContext)
		if err != nil {
			return nil, err
		}
		if equivalent {
			return group, nil
		}
	}
	return nil, nil
}

// Classify places candidate into an existing group or opens a new one,
// returning the group it ended up in.
func (d *Discriminator) Classify(ctx context.Context, candidate *model.Candidate, taskContext string) (*model.SemanticGroup, error) {
	group, err := d.FindGroup(ctx, candidate, taskContext)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if group != nil {
		group.Add(candidate)
		return group, nil
	}

	id := fmt.Sprintf("group_%d", len(d.groups))
	newGroup := &model.SemanticGroup{ID: id, Representative: candidate}
	newGroup.Add(candidate)
	d.groups[id] = newGroup
	d.order = append(d.order, id)
	return newGroup, nil
}

// ClassifyBatch classifies every candidate in order, sequentially, since
// each classification depends on groups formed by earlier ones.
func (d *Discriminator) ClassifyBatch(ctx context.Context, candidates []*model.Candidate, taskContext string) (map[string]*model.SemanticGroup, error) {
	for _, c := range candidates {
		if _, err := d.Classify(ctx, c, taskContext); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]*model.SemanticGroup, len(d.groups))
	for id, g := range d.groups {
		out[id] = g
	}
	return out, nil
}

// Winner returns the leading group if it holds at least k more votes than
// the runner-up, or nil if no group has won yet.
func (d *Discriminator) Winner(k int) *model.SemanticGroup {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.groups) == 0 {
		return nil
	}

	sorted := make([]*model.SemanticGroup, 0, len(d.groups))
	for _, g := range d.groups {
		sorted = append(sorted, g)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Votes() > sorted[j].Votes()
	})

	leader := sorted[0]
	runnerUpVotes := 0
	if len(sorted) > 1 {
		runnerUpVotes = sorted[1].Votes()
	}

	if leader.Votes()-runnerUpVotes >= k {
		return leader
	}
	return nil
}

// Groups returns every group formed so far, in the order they were opened.
func (d *Discriminator) Groups() []*model.SemanticGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.SemanticGroup, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.groups[id])
	}
	return out
}

// Reset clears all groups and the comparison cache, ready for a new voting
// session.
func (d *Discriminator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups = make(map[string]*model.SemanticGroup)
	d.order = nil
	d.comparisonCache = make(map[cacheKey]bool)
}

// Stats is a snapshot of the current session's grouping state, primarily
// useful for introspection and logging.
type Stats struct {
	Groups          int
	TotalCandidates int
	CacheEntries    int
	GroupSizes      map[string]int
}

// Stats reports the current grouping statistics.
func (d *Discriminator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	sizes := make(map[string]int, len(d.groups))
	total := 0
	for id, g := range d.groups {
		sizes[id] = g.Votes()
		total += g.Votes()
	}

	return Stats{
		Groups:          len(d.groups),
		TotalCandidates: total,
		CacheEntries:    len(d.comparisonCache),
		GroupSizes:      sizes,
	}
}
