package orchestrator

import (
	"fmt"

	"github.com/joss/autopilot/internal/domain"
)

// ComputeBatches builds the implement-phase batch list. Called exactly
// once when implement begins; batches are never re-split afterwards.
//
// When the planning collaborator supplied task sections, each section
// becomes one batch in order. Otherwise the flat task set is grouped
// into equal-sized batches of fallbackSize.
func ComputeBatches(sections []domain.TaskSection, taskIDs []string, fallbackSize int) *domain.BatchTracking {
	var items []domain.BatchItem

	if len(sections) > 0 {
		for i, sec := range sections {
			items = append(items, domain.BatchItem{
				Index:   i,
				Section: sec.Section,
				TaskIDs: sec.TaskIDs,
				Status:  domain.BatchPending,
			})
		}
	} else {
		if fallbackSize <= 0 {
			fallbackSize = 5
		}
		for i := 0; i < len(taskIDs); i += fallbackSize {
			end := i + fallbackSize
			if end > len(taskIDs) {
				end = len(taskIDs)
			}
			items = append(items, domain.BatchItem{
				Index:   len(items),
				Section: fmt.Sprintf("batch %d", len(items)+1),
				TaskIDs: taskIDs[i:end],
				Status:  domain.BatchPending,
			})
		}
	}

	return &domain.BatchTracking{
		Total: len(items),
		Items: items,
	}
}
