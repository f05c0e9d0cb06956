package ingest

import "fmt"

// ValidateRecord checks that a transformed record can identify a row: every
// unique-key component must carry a value. A null or absent key column
// rejects the record. rowNumber is the 1-based file row, used only in the
// error message.
func ValidateRecord(rec Record, uniqueKeys []string, rowNumber int) error {
	for _, key := range uniqueKeys {
		if rec.Get(key).IsEmpty() {
			return fmt.Errorf("row %d: key column %s is empty", rowNumber, key)
		}
	}
	return nil
}
