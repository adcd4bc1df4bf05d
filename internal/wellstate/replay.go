package wellstate

import "github.com/well-timeline/backend/internal/models"

// Replay folds payloads in order starting from initial and returns every
// intermediate snapshot. The first element is a clone of initial; element k
// is the state after the first k payloads.
func (a *Applier) Replay(initial *models.WellState, payloads ...models.InterventionPayload) ([]*models.WellState, []models.FoldReport) {
	if initial == nil {
		initial = models.NewWellState()
	}
	snapshots := make([]*models.WellState, 0, len(payloads)+1)
	reports := make([]models.FoldReport, 0, len(payloads))
	snapshots = append(snapshots, initial.Clone())
	for _, p := range payloads {
		next, report := a.Apply(snapshots[len(snapshots)-1], p)
		snapshots = append(snapshots, next)
		reports = append(reports, report)
	}
	return snapshots, reports
}
