package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(totalPages int, layout Layout) *Job {
	return &Job{
		ID:            "t1",
		Status:        StatusPending,
		Layout:        layout,
		TotalPages:    totalPages,
		PanelsPerPage: layout.PanelsPerPage(),
	}
}

func makePage(n, panels int) Page {
	return Page{PageNumber: n, Panels: make([]Panel, panels)}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusAnalyzing, true},
		{StatusAnalyzing, StatusScripting, true},
		{StatusScripting, StatusRendering, true},
		{StatusRendering, StatusRendering, true},
		{StatusRendering, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusRendering, StatusFailed, true},
		{StatusPending, StatusRendering, false},
		{StatusScripting, StatusAnalyzing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusFailed, false},
		{StatusCompleted, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestValidate(t *testing.T) {
	j := newJob(4, Standard)
	require.NoError(t, j.Validate())

	j.PlotOutline = []string{"a", "b", "c"}
	assert.ErrorIs(t, j.Validate(), ErrInvariant)
	j.PlotOutline = []string{"a", "b", "c", "d"}
	require.NoError(t, j.Validate())

	j.Pages = []Page{makePage(1, 4)}
	assert.ErrorIs(t, j.Validate(), ErrInvariant, "pagesCompleted must track len(pages)")
	j.PagesCompleted = 1
	require.NoError(t, j.Validate())

	j.Pages = append(j.Pages, makePage(2, 6))
	j.PagesCompleted = 2
	assert.ErrorIs(t, j.Validate(), ErrInvariant)

	bad := newJob(6, Standard)
	assert.ErrorIs(t, bad.Validate(), ErrInvariant)
}

func TestCheckUpdate(t *testing.T) {
	prev := newJob(4, Standard)
	prev.Status = StatusRendering
	prev.PlotOutline = []string{"a", "b", "c", "d"}
	prev.Pages = []Page{makePage(1, 4)}
	prev.PagesCompleted = 1

	next := prev.Clone()
	next.Pages = append(next.Pages, makePage(2, 4))
	next.PagesCompleted = 2
	require.NoError(t, next.CheckUpdate(prev))

	shrink := prev.Clone()
	shrink.Pages = nil
	shrink.PagesCompleted = 0
	assert.ErrorIs(t, shrink.CheckUpdate(prev), ErrInvariant)

	back := prev.Clone()
	back.Status = StatusScripting
	assert.ErrorIs(t, back.CheckUpdate(prev), ErrInvalidTransition)

	done := prev.Clone()
	done.Status = StatusCompleted
	again := done.Clone()
	again.StatusMessage = "changed"
	assert.ErrorIs(t, again.CheckUpdate(done), ErrTerminal)
}

func TestCloneIsDeep(t *testing.T) {
	j := newJob(4, Standard)
	j.PlotOutline = []string{"a", "b", "c", "d"}
	j.Pages = []Page{{PageNumber: 1, Panels: []Panel{{Dialogue: "hi"}}}}
	c := j.Clone()
	c.PlotOutline[0] = "x"
	c.Pages[0].Panels[0].Dialogue = "bye"
	assert.Equal(t, "a", j.PlotOutline[0])
	assert.Equal(t, "hi", j.Pages[0].Panels[0].Dialogue)
}

func TestVibeRolesAndCosts(t *testing.T) {
	assert.Equal(t, VibeFunny, ParseVibe(" Funny "))
	assert.Equal(t, VibeAdventure, ParseVibe("space-opera"))
	assert.Equal(t, "villain", VibeAdventure.Role(2))
	assert.Equal(t, "setting", VibeSchool.Role(3))
	assert.Equal(t, 6, ParseLayout("dynamic").PanelsPerPage())
	assert.Equal(t, 4, ParseLayout("").PanelsPerPage())
	assert.Equal(t, 100, CostFor(4))
	assert.Equal(t, 180, CostFor(8))
	assert.Equal(t, 250, CostFor(12))
	assert.False(t, ValidPageCount(6))
}

func TestViewNeverReturnsNilPages(t *testing.T) {
	v := newJob(4, Standard).View()
	assert.NotNil(t, v.Pages)
	assert.Empty(t, v.Pages)
}
