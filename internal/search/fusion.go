package search

import (
	"sort"
)

// group collects one canonical record's best hit per index.
type group struct {
	id         string
	entityType string
	best       map[string]Hit
}

// fuse groups hits by canonical id and scores each group.
//
// A record seen by one index keeps that hit's similarity. A record seen by
// several indexes scores w.Primary*anchor + w.Secondary*next, where anchor is
// the primary index's hit when present and the strongest hit otherwise, and
// next is the strongest remaining hit.
func fuse(groups map[string]*group, primary string, w Weights) []Candidate {
	out := make([]Candidate, 0, len(groups))
	for _, g := range groups {
		hits := make([]Hit, 0, len(g.best))
		for _, h := range g.best {
			hits = append(hits, h)
		}
		sortHits(hits, primary)

		score := hits[0].Similarity
		if len(hits) > 1 {
			score = w.Primary*hits[0].Similarity + w.Secondary*hits[1].Similarity
		}
		out = append(out, Candidate{ID: g.id, EntityType: g.entityType, Score: score, Hits: hits})
	}
	sortCandidates(out)
	return out
}

// sortHits puts the primary index first, then the rest by similarity.
func sortHits(hits []Hit, primary string) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if (a.Index == primary) != (b.Index == primary) {
			return a.Index == primary
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Index < b.Index
	})
}

// sortCandidates orders by score descending, then id ascending.
func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if c[i].ID != c[j].ID {
			return c[i].ID < c[j].ID
		}
		return c[i].EntityType < c[j].EntityType
	})
}
