package chrono

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-timeline/backend/internal/models"
)

func doneSet(indices ...int) func(int) bool {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return func(i int) bool { return set[i] }
}

func sampleItems() []models.RawIntervention {
	return []models.RawIntervention{
		{Index: 1, FechaISO: "1990-05-01"},
		{Index: 2, FechaTexto: "sin fecha"},
		{Index: 3, FechaISO: "1982-05-12"},
		{Index: 4, FechaTexto: "OUT/70"},
		{Index: 5},
		{Index: 6, FechaISO: "1990-05-01"},
	}
}

func TestSequence_Order(t *testing.T) {
	s := New(sampleItems())

	assert.Equal(t, []int{4, 3, 1, 6, 2, 5}, s.Order())
	assert.Equal(t, 6, s.Len())
	assert.Equal(t, "1970-10-31", s.Date(4))
	assert.Equal(t, "", s.Date(2))

	r, ok := s.Rank(6)
	require.True(t, ok)
	assert.Equal(t, 3, r)
	_, ok = s.Rank(99)
	assert.False(t, ok)
	assert.Equal(t, 1, s.At(2))
}

func TestSequence_AllUndated(t *testing.T) {
	s := New([]models.RawIntervention{{Index: 3}, {Index: 1}, {Index: 2}})
	assert.Equal(t, []int{1, 2, 3}, s.Order())
}

func TestSequence_Gating(t *testing.T) {
	s := New(sampleItems())

	next, ok := s.Next(doneSet())
	require.True(t, ok)
	assert.Equal(t, 4, next)
	assert.True(t, s.CanAnalyze(4, doneSet()))
	assert.False(t, s.CanAnalyze(3, doneSet()))
	assert.False(t, s.CanAnalyze(1, doneSet()))

	assert.True(t, s.CanAnalyze(3, doneSet(4)))
	assert.False(t, s.CanAnalyze(4, doneSet(4)))

	// An out-of-order analysis does not advance the prefix.
	assert.Equal(t, 0, s.Completed(doneSet(3)))
	assert.True(t, s.CanAnalyze(4, doneSet(3)))

	_, ok = s.Next(doneSet(1, 2, 3, 4, 5, 6))
	assert.False(t, ok)
}

func TestSequence_Chronology(t *testing.T) {
	s := New(sampleItems())
	c := s.Chronology(doneSet(4, 3))

	assert.Equal(t, []int{4, 3, 1, 6, 2, 5}, c.Order)
	assert.Equal(t, 2, c.Completed)
	require.NotNil(t, c.Next)
	assert.Equal(t, 1, *c.Next)
	assert.Equal(t, 0, c.Ranks[4])

	c = s.Chronology(doneSet(1, 2, 3, 4, 5, 6))
	assert.Nil(t, c.Next)
	assert.Equal(t, 6, c.Completed)
}

func TestSequence_OrderIsCopy(t *testing.T) {
	s := New(sampleItems())
	o := s.Order()
	o[0] = 100
	assert.Equal(t, 4, s.Order()[0])
}
