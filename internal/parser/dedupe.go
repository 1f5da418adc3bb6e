package parser

import "github.com/ablyler/dvc-resale-data/internal/model"

// Deduplicate collapses repeated disclosures of the same contract into one
// record each. Two entries describe the same contract when every identifying
// field except outcome and outcome date matches; of those, the entry with the
// more advanced outcome wins (taken over passed over pending). On equal
// outcomes the first-seen entry is kept. Input order is preserved for the
// survivors.
func Deduplicate(entries []model.Entry) []model.Entry {
	byKey := make(map[string]int, len(entries))
	out := make([]model.Entry, 0, len(entries))

	for _, e := range entries {
		key := e.DedupeKey()
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, e)
			continue
		}
		if e.Result.Priority() > out[idx].Result.Priority() {
			out[idx] = e
		}
	}
	return out
}
