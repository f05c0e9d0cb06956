package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/regdata-io/cmsload/internal/catalog"
)

func rvuMappings() []catalog.ColumnMapping {
	return []catalog.ColumnMapping{
		{InternalName: "hcpcs_code", Headers: []string{"HCPCS", "HCPC", "HCPCS CODE"}, Required: true},
		{InternalName: "description", Headers: []string{"DESCRIPTION", "DESC"}},
		{InternalName: "work_rvu", Headers: []string{"WORK RVU", "WRVU"}, Required: true},
	}
}

func TestLocateHeader(t *testing.T) {
	t.Run("skips preamble rows", func(t *testing.T) {
		grid := RawGrid{
			{"Physician Fee Schedule", "", ""},
			{"Released January 2025", "", ""},
			{"HCPCS", "DESCRIPTION", "WORK RVU"},
			{"99213", "Office visit", "1.30"},
		}
		match, err := LocateHeader(grid, rvuMappings(), 15)
		if err != nil {
			t.Fatal(err)
		}
		if match.RowIndex != 2 {
			t.Errorf("RowIndex = %d, want 2", match.RowIndex)
		}
		if match.Columns["hcpcs_code"] != "HCPCS" {
			t.Errorf("hcpcs_code matched %q, want HCPCS", match.Columns["hcpcs_code"])
		}
	})

	t.Run("case-insensitive", func(t *testing.T) {
		grid := RawGrid{{"hcpcs", "description", "work rvu"}}
		match, err := LocateHeader(grid, rvuMappings(), 15)
		if err != nil {
			t.Fatal(err)
		}
		if match.RowIndex != 0 {
			t.Errorf("RowIndex = %d, want 0", match.RowIndex)
		}
	})

	t.Run("prefix match both directions", func(t *testing.T) {
		// Cell extends the candidate: "HCPCS Code Set" starts with "HCPCS".
		// Candidate extends the cell: "WORK" is a prefix of "WORK RVU".
		grid := RawGrid{{"HCPCS Code Set", "DESCRIPTION", "WORK"}}
		match, err := LocateHeader(grid, rvuMappings(), 15)
		if err != nil {
			t.Fatal(err)
		}
		if match.Columns["work_rvu"] != "WORK" {
			t.Errorf("work_rvu matched %q, want WORK", match.Columns["work_rvu"])
		}
	})

	t.Run("no row satisfies required columns", func(t *testing.T) {
		grid := RawGrid{
			{"DESCRIPTION", "WORK RVU"},
			{"some", "data"},
		}
		_, err := LocateHeader(grid, rvuMappings(), 15)
		if !errors.Is(err, ErrHeaderNotFound) {
			t.Fatalf("err = %v, want ErrHeaderNotFound", err)
		}
		if !strings.Contains(err.Error(), "hcpcs_code") {
			t.Errorf("error should name the missing column: %v", err)
		}
	})

	t.Run("scan limit respected", func(t *testing.T) {
		grid := RawGrid{
			{"junk"},
			{"junk"},
			{"HCPCS", "DESCRIPTION", "WORK RVU"},
		}
		if _, err := LocateHeader(grid, rvuMappings(), 2); !errors.Is(err, ErrHeaderNotFound) {
			t.Fatalf("header beyond scan limit should not be found, got err = %v", err)
		}
	})

	t.Run("cell claimed by one column only", func(t *testing.T) {
		mappings := []catalog.ColumnMapping{
			{InternalName: "locality_code", Headers: []string{"LOCALITY"}, Required: true},
			{InternalName: "mac_locality", Headers: []string{"MAC LOCALITY", "LOCALITY"}},
		}
		grid := RawGrid{{"LOCALITY", "MAC LOCALITY"}}
		match, err := LocateHeader(grid, mappings, 15)
		if err != nil {
			t.Fatal(err)
		}
		// First-declared column claims cell 0; the second must match cell 1.
		if match.Columns["locality_code"] != "LOCALITY" {
			t.Errorf("locality_code matched %q", match.Columns["locality_code"])
		}
		if match.Columns["mac_locality"] != "MAC LOCALITY" {
			t.Errorf("mac_locality matched %q", match.Columns["mac_locality"])
		}
	})

	t.Run("short known header prefixes a longer cell", func(t *testing.T) {
		mappings := []catalog.ColumnMapping{
			{InternalName: "record_id", Headers: []string{"ID"}, Required: true},
		}
		match, err := LocateHeader(RawGrid{{"ID NUMBER"}}, mappings, 15)
		if err != nil {
			t.Fatal(err)
		}
		if match.Columns["record_id"] != "ID NUMBER" {
			t.Errorf("record_id matched %q, want ID NUMBER", match.Columns["record_id"])
		}
	})

	t.Run("short cell fragment needs exact match", func(t *testing.T) {
		mappings := []catalog.ColumnMapping{
			{InternalName: "pe_gpci", Headers: []string{"PEAK"}, Required: true},
		}
		// A 2-char cell must not prefix-match a longer known spelling.
		if _, err := LocateHeader(RawGrid{{"PE"}}, mappings, 15); !errors.Is(err, ErrHeaderNotFound) {
			t.Fatalf("2-char cell should not prefix-match, got err = %v", err)
		}
		match, err := LocateHeader(RawGrid{{"PEAK"}}, mappings, 15)
		if err != nil {
			t.Fatal(err)
		}
		if match.Columns["pe_gpci"] != "PEAK" {
			t.Errorf("exact match failed: %v", match.Columns)
		}
	})

	t.Run("reports unmapped cells in row order", func(t *testing.T) {
		grid := RawGrid{{"HCPCS", "MYSTERY", "DESCRIPTION", "WORK RVU", "", "EXTRA"}}
		match, err := LocateHeader(grid, rvuMappings(), 15)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"MYSTERY", "EXTRA"}
		if len(match.UnmappedColumns) != len(want) {
			t.Fatalf("UnmappedColumns = %v, want %v", match.UnmappedColumns, want)
		}
		for i, cell := range want {
			if match.UnmappedColumns[i] != cell {
				t.Errorf("UnmappedColumns[%d] = %q, want %q", i, match.UnmappedColumns[i], cell)
			}
		}
	})

	t.Run("optional-only mappings still need one match", func(t *testing.T) {
		mappings := []catalog.ColumnMapping{
			{InternalName: "description", Headers: []string{"DESCRIPTION"}},
		}
		grid := RawGrid{
			{"Quarterly extract", ""},
			{"DESCRIPTION", "VALUE"},
		}
		match, err := LocateHeader(grid, mappings, 15)
		if err != nil {
			t.Fatal(err)
		}
		// A row matching nothing must not qualify just because no column
		// is required.
		if match.RowIndex != 1 {
			t.Errorf("RowIndex = %d, want 1", match.RowIndex)
		}
	})
}

func TestPositionIndex(t *testing.T) {
	t.Run("maps columns to cell positions", func(t *testing.T) {
		grid := RawGrid{{"HCPCS", "DESCRIPTION", "WORK RVU"}}
		match, err := LocateHeader(grid, rvuMappings(), 15)
		if err != nil {
			t.Fatal(err)
		}
		pos := match.PositionIndex(grid)
		want := map[string]int{"hcpcs_code": 0, "description": 1, "work_rvu": 2}
		for name, idx := range want {
			if pos[name] != idx {
				t.Errorf("pos[%s] = %d, want %d", name, pos[name], idx)
			}
		}
	})

	t.Run("duplicate literal resolves to last occurrence", func(t *testing.T) {
		mappings := []catalog.ColumnMapping{
			{InternalName: "hcpcs_code", Headers: []string{"HCPCS"}, Required: true},
		}
		grid := RawGrid{{"HCPCS", "other", "HCPCS"}}
		match, err := LocateHeader(grid, mappings, 15)
		if err != nil {
			t.Fatal(err)
		}
		pos := match.PositionIndex(grid)
		if pos["hcpcs_code"] != 2 {
			t.Errorf("pos[hcpcs_code] = %d, want 2 (last occurrence)", pos["hcpcs_code"])
		}
	})
}
