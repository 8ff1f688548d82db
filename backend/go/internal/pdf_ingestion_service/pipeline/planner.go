package pipeline

import "otherly/backend/go/internal/models"

// PlanChunks splits [0,total) into consecutive ranges of at most maxPages pages.
func PlanChunks(total, maxPages int) ([]models.PageRange, error) {
	if maxPages < 1 {
		return nil, Errorf(KindValidation, "plan", "page ceiling must be at least 1, got %d", maxPages)
	}
	if total < 0 {
		return nil, Errorf(KindValidation, "plan", "page count must not be negative, got %d", total)
	}

	ranges := make([]models.PageRange, 0, (total+maxPages-1)/maxPages)
	for start := 0; start < total; start += maxPages {
		end := start + maxPages
		if end > total {
			end = total
		}
		ranges = append(ranges, models.PageRange{Start: start, End: end})
	}
	return ranges, nil
}
