package ingest

import (
	"strings"
	"testing"

	"github.com/regdata-io/cmsload/internal/catalog"
)

func pipelineFixture() (*sourceContext, []catalog.ColumnMapping) {
	sc := &sourceContext{
		source: catalog.DataSource{ID: 1, Code: "PFS_RVU"},
		cfg: catalog.TableConfig{
			SourceCode: "PFS_RVU",
			Table:      "cms.pfs_rvu",
			Columns:    []string{"hcpcs_code", "modifier", "work_rvu"},
			UniqueKeys: []string{"hcpcs_code", "modifier"},
		},
		columns: []catalog.CanonicalColumn{
			{InternalName: "hcpcs_code", DataType: catalog.TypeText, Required: true},
			{InternalName: "modifier", DataType: catalog.TypeText},
			{InternalName: "work_rvu", DataType: catalog.TypeNumeric},
		},
	}
	mappings := []catalog.ColumnMapping{
		{InternalName: "hcpcs_code", Headers: []string{"HCPCS"}, Required: true},
		{InternalName: "modifier", Headers: []string{"MOD"}},
		{InternalName: "work_rvu", Headers: []string{"WORK RVU"}, Required: true},
	}
	return sc, mappings
}

func TestRunPipeline(t *testing.T) {
	sc, mappings := pipelineFixture()
	grid := RawGrid{
		{"Physician Fee Schedule", "", ""},
		{"HCPCS", "MOD", "WORK RVU"},
		{"99213", "26", "1.30"},
		{"", "", ""},              // empty, skipped
		{"", "26", "0.50"},        // key column missing, rejected
		{"99213", "26", "1.30"},   // duplicate of file row 3
		{"99214", "TC", "2.11"},
	}

	match, err := LocateHeader(grid, mappings, 15)
	if err != nil {
		t.Fatal(err)
	}
	if match.RowIndex != 1 {
		t.Fatalf("RowIndex = %d, want 1", match.RowIndex)
	}
	posIdx := match.PositionIndex(grid)

	o := &Orchestrator{opts: Options{}.withDefaults()}
	result := &Result{}
	o.runPipeline(grid, match, posIdx, sc, result)

	if result.RowsProcessed != 3 {
		t.Errorf("RowsProcessed = %d, want 3", result.RowsProcessed)
	}
	if result.RowsSkipped != 1 {
		t.Errorf("RowsSkipped = %d, want 1 (the empty row)", result.RowsSkipped)
	}
	if result.DuplicatesSkipped != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", result.DuplicatesSkipped)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want one rejection", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "row 5") || !strings.Contains(result.Errors[0], "hcpcs_code") {
		t.Errorf("rejection should name file row 5 and the column: %q", result.Errors[0])
	}

	// Surviving records carry 1-based file row numbers.
	wantRows := []int{3, 7}
	if len(result.pending) != len(wantRows) {
		t.Fatalf("pending = %d records, want %d", len(result.pending), len(wantRows))
	}
	for i, want := range wantRows {
		if result.pending[i].Row != want {
			t.Errorf("pending[%d].Row = %d, want %d", i, result.pending[i].Row, want)
		}
	}

	stats, ok := result.ColumnStats["work_rvu"]
	if !ok {
		t.Fatal("missing work_rvu column stats")
	}
	if stats.NullCount != 0 {
		t.Errorf("work_rvu NullCount = %d, want 0", stats.NullCount)
	}
	if len(stats.Samples) == 0 || stats.Samples[0] != "1.3" {
		t.Errorf("work_rvu Samples = %v, want first sample 1.3", stats.Samples)
	}
}

func TestRunPipelineAllRowsEmpty(t *testing.T) {
	sc, mappings := pipelineFixture()
	grid := RawGrid{
		{"HCPCS", "MOD", "WORK RVU"},
		{"", "", ""},
		{"", "", ""},
	}
	match, err := LocateHeader(grid, mappings, 15)
	if err != nil {
		t.Fatal(err)
	}

	o := &Orchestrator{opts: Options{}.withDefaults()}
	result := &Result{}
	o.runPipeline(grid, match, match.PositionIndex(grid), sc, result)

	if result.RowsProcessed != 0 || result.RowsSkipped != 2 {
		t.Errorf("processed=%d skipped=%d, want 0/2", result.RowsProcessed, result.RowsSkipped)
	}
	if len(result.pending) != 0 {
		t.Errorf("pending = %d records, want none", len(result.pending))
	}
}
