package query

import (
	"github.com/thanhnp/dispenser-tracker/internal/models"
)

// FilterVisible returns records unchanged when showClosed is set, otherwise
// the records that are not closed in their original order. records is never
// modified.
func FilterVisible(records []models.Dispenser, showClosed bool) []models.Dispenser {
	if showClosed {
		return records
	}

	visible := make([]models.Dispenser, 0, len(records))
	for _, d := range records {
		if !d.IsClosed() {
			visible = append(visible, d)
		}
	}
	return visible
}
