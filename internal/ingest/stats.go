package ingest

// maxStatSamples caps the example values retained per column.
const maxStatSamples = 3

// ColumnStats summarizes one column across the loaded rows.
type ColumnStats struct {
	NullCount   int      `json:"null_count"`
	NullPercent float64  `json:"null_percent"`
	Samples     []string `json:"samples"`
}

// statsCollector accumulates per-column statistics while rows stream through
// the pipeline.
type statsCollector struct {
	rows  int
	stats map[string]*ColumnStats
}

func newStatsCollector(columns []string) *statsCollector {
	c := &statsCollector{stats: make(map[string]*ColumnStats, len(columns))}
	for _, name := range columns {
		c.stats[name] = &ColumnStats{}
	}
	return c
}

func (c *statsCollector) Observe(rec Record) {
	c.rows++
	for name, st := range c.stats {
		v := rec.Get(name)
		if v.IsEmpty() {
			st.NullCount++
			continue
		}
		if len(st.Samples) < maxStatSamples {
			st.Samples = append(st.Samples, v.String())
		}
	}
}

// Result returns the collected statistics with null percentages filled in.
func (c *statsCollector) Result() map[string]ColumnStats {
	out := make(map[string]ColumnStats, len(c.stats))
	for name, st := range c.stats {
		s := *st
		if c.rows > 0 {
			s.NullPercent = float64(s.NullCount) / float64(c.rows) * 100
		}
		out[name] = s
	}
	return out
}
