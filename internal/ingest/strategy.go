package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// Strategy customizes coercion for sources whose files deviate from the
// generic type rules. TransformField may claim a field before the generic
// coercion runs; Finalize runs after the whole row is transformed and may
// derive fields from other columns.
type Strategy interface {
	TransformField(name, raw string) (Value, bool)
	Finalize(rec Record, row []string, posIdx map[string]int)
}

// StrategyFor returns the strategy for a source code, or nil when the
// generic rules suffice.
func StrategyFor(sourceCode string) Strategy {
	switch {
	case strings.HasPrefix(sourceCode, "NCCI_MUE"):
		return mueStrategy{}
	case sourceCode == "NCCI_PTP":
		return ptpStrategy{}
	default:
		return nil
	}
}

var maiLeadingDigit = regexp.MustCompile(`^(\d+)`)

// mueStrategy handles Medically Unlikely Edits files. The unit-of-service
// limit is a plain count where zero is a real value, and the MAI adjudication
// indicator arrives embedded in its description text.
type mueStrategy struct{}

func (mueStrategy) TransformField(name, raw string) (Value, bool) {
	if name == "mue_value" {
		return parseMUEValue(raw), true
	}
	return Value{}, false
}

// Finalize derives mai_id from the leading digits of mai_description.
// Only adjudication indicators 1, 2 and 3 exist; anything else stays null.
func (mueStrategy) Finalize(rec Record, row []string, posIdx map[string]int) {
	idx, ok := posIdx["mai_description"]
	if !ok || idx >= len(row) {
		return
	}
	m := maiLeadingDigit.FindString(strings.TrimSpace(row[idx]))
	if m == "" {
		rec["mai_id"] = Null()
		return
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil || n < 1 || n > 3 {
		rec["mai_id"] = Null()
		return
	}
	rec["mai_id"] = Integer(n)
}

// parseMUEValue parses the unit limit. Zero is valid and must not collapse
// to null.
func parseMUEValue(raw string) Value {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return Null()
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Null()
	}
	return Integer(int64(f))
}

// ptpStrategy handles Procedure-to-Procedure edit files.
type ptpStrategy struct{}

func (ptpStrategy) TransformField(name, raw string) (Value, bool) {
	switch name {
	case "deletion_date":
		// An asterisk marks an edit that is still active.
		if raw == "*" {
			return Null(), true
		}
		return parseDate(raw), true
	case "modifier_indicator":
		return parsePTPModifier(raw), true
	case "prior_1996_flag":
		return Bool(raw == "*"), true
	}
	return Value{}, false
}

// Finalize keeps prior_1996_flag three-valued: files without the column load
// as null rather than false.
func (ptpStrategy) Finalize(rec Record, row []string, posIdx map[string]int) {
	if v, ok := rec["prior_1996_flag"]; ok && v.IsAbsent() {
		rec["prior_1996_flag"] = Null()
	}
}

// parsePTPModifier reads the modifier indicator. The first character decides
// when it is one of the documented codes 0, 1 or 9; otherwise the whole cell
// is parsed as a generic integer.
func parsePTPModifier(raw string) Value {
	if raw == "" {
		return Null()
	}
	switch raw[0] {
	case '0', '1', '9':
		return Integer(int64(raw[0] - '0'))
	}
	return parseInteger(raw)
}
