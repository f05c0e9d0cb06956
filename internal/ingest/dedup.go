package ingest

import "strings"

// FilterDuplicates drops records whose unique-key tuple repeats, keeping the
// first occurrence and preserving order. A record with any null or absent key
// component is always kept; such rows cannot collide on the key and the
// database constraint treats nulls as distinct anyway.
func FilterDuplicates(records []RecordRow, uniqueKeys []string) (kept []RecordRow, dupCount int) {
	if len(uniqueKeys) == 0 {
		return records, 0
	}

	seen := make(map[string]bool, len(records))
	kept = make([]RecordRow, 0, len(records))
	for _, rr := range records {
		key, ok := dedupKey(rr.Record, uniqueKeys)
		if !ok {
			kept = append(kept, rr)
			continue
		}
		if seen[key] {
			dupCount++
			continue
		}
		seen[key] = true
		kept = append(kept, rr)
	}
	return kept, dupCount
}

// dedupKey builds the composite key string. ok is false when any component
// is empty.
func dedupKey(rec Record, uniqueKeys []string) (string, bool) {
	parts := make([]string, 0, len(uniqueKeys))
	for _, k := range uniqueKeys {
		v := rec.Get(k)
		if v.IsEmpty() {
			return "", false
		}
		parts = append(parts, v.keyString())
	}
	return strings.Join(parts, "\x1f"), true
}
