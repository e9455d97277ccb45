package metrics

import "sort"

// StatusBucket represents the response count for a step/status-code pair.
type StatusBucket struct {
	Step  string
	Code  string
	Count int
}

// FlattenStatusBuckets converts a nested step->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by step/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for step, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Step: step, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Step == rows[j].Step {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Step < rows[j].Step
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
