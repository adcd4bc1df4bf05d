// Package chrono orders the interventions of a well history and decides
// which one may be analyzed next.
package chrono

import (
	"sort"

	"github.com/well-timeline/backend/internal/models"
)

// Sequence is the analysis order of a set of interventions. Dated entries
// come first in ascending date order, undated entries after them, and ties
// keep the original index order.
type Sequence struct {
	order []int
	rank  map[int]int
	dates map[int]string
}

// ResolveDate returns the ISO date of an intervention, resolving the text
// label when no ISO date was recorded.
func ResolveDate(it models.RawIntervention) string {
	if it.FechaISO != "" {
		return it.FechaISO
	}
	return ToISO(it.FechaTexto)
}

// New builds the sequence for items.
func New(items []models.RawIntervention) *Sequence {
	type entry struct {
		index int
		date  string
	}
	entries := make([]entry, len(items))
	dates := make(map[int]string, len(items))
	for i, it := range items {
		d := ResolveDate(it)
		entries[i] = entry{index: it.Index, date: d}
		dates[it.Index] = d
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.date != "" && b.date != "":
			if a.date != b.date {
				return a.date < b.date
			}
		case a.date != "":
			return true
		case b.date != "":
			return false
		}
		return a.index < b.index
	})

	s := &Sequence{
		order: make([]int, len(entries)),
		rank:  make(map[int]int, len(entries)),
		dates: dates,
	}
	for pos, e := range entries {
		s.order[pos] = e.index
		s.rank[e.index] = pos
	}
	return s
}

// Len returns the number of interventions.
func (s *Sequence) Len() int {
	return len(s.order)
}

// Order returns the intervention indices in analysis order.
func (s *Sequence) Order() []int {
	return append([]int(nil), s.order...)
}

// At returns the intervention index at position pos.
func (s *Sequence) At(pos int) int {
	return s.order[pos]
}

// Rank returns the zero-based position of index in the order.
func (s *Sequence) Rank(index int) (int, bool) {
	r, ok := s.rank[index]
	return r, ok
}

// Date returns the resolved ISO date of index, or "".
func (s *Sequence) Date(index int) string {
	return s.dates[index]
}

// Completed counts the interventions analyzed without gaps from the start
// of the order.
func (s *Sequence) Completed(done func(index int) bool) int {
	n := 0
	for _, idx := range s.order {
		if !done(idx) {
			break
		}
		n++
	}
	return n
}

// Next returns the earliest intervention that has not been analyzed.
func (s *Sequence) Next(done func(index int) bool) (int, bool) {
	c := s.Completed(done)
	if c >= len(s.order) {
		return 0, false
	}
	return s.order[c], true
}

// CanAnalyze reports whether index is the next intervention eligible for
// analysis.
func (s *Sequence) CanAnalyze(index int, done func(index int) bool) bool {
	next, ok := s.Next(done)
	return ok && next == index
}

// Chronology summarizes the sequence for clients.
func (s *Sequence) Chronology(done func(index int) bool) models.Chronology {
	c := models.Chronology{
		Order:     s.Order(),
		Ranks:     make(map[int]int, len(s.rank)),
		Completed: s.Completed(done),
	}
	for idx, r := range s.rank {
		c.Ranks[idx] = r
	}
	if next, ok := s.Next(done); ok {
		c.Next = &next
	}
	return c
}
