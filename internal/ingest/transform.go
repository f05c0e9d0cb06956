package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/regdata-io/cmsload/internal/catalog"
)

// dateLayouts are the accepted input date formats, tried in order.
var dateLayouts = []string{
	"20060102",
	"01/02/2006",
	"2006-01-02",
	"2006/01/02",
	"01-02-2006",
}

// nullTokens are text values treated as missing data.
var nullTokens = map[string]bool{
	"":     true,
	"NULL": true,
	"N/A":  true,
	"nan":  true,
	"NaN":  true,
}

// TransformRow converts one raw grid row into a typed Record. Columns without
// a resolved position yield absent values; everything else goes through the
// per-type coercion, with the strategy getting first refusal on each field.
func TransformRow(row []string, columns []catalog.CanonicalColumn, posIdx map[string]int, strat Strategy) Record {
	rec := make(Record, len(columns))
	for _, col := range columns {
		idx, ok := posIdx[col.InternalName]
		if !ok || idx >= len(row) {
			rec[col.InternalName] = Absent()
			continue
		}
		raw := strings.TrimSpace(row[idx])
		if strat != nil {
			if v, handled := strat.TransformField(col.InternalName, raw); handled {
				rec[col.InternalName] = v
				continue
			}
		}
		rec[col.InternalName] = transformValue(raw, col.DataType, col.InternalName)
	}
	if strat != nil {
		strat.Finalize(rec, row, posIdx)
	}
	return rec
}

// transformValue coerces a single trimmed cell according to the column type.
// Values that cannot be coerced become null rather than failing the row.
func transformValue(raw string, t catalog.ColumnType, name string) Value {
	switch t {
	case catalog.TypeText:
		if nullTokens[raw] {
			return Null()
		}
		if strings.HasSuffix(name, "_code") {
			return Text(cleanCode(raw))
		}
		return Text(raw)
	case catalog.TypeNumeric:
		return parseNumeric(raw)
	case catalog.TypeInteger:
		return parseInteger(raw)
	case catalog.TypeDate:
		return parseDate(raw)
	case catalog.TypeBoolean:
		return parseBoolean(raw)
	default:
		if nullTokens[raw] {
			return Null()
		}
		return Text(raw)
	}
}

// cleanCode normalizes procedure and modifier codes to uppercase.
func cleanCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func parseNumeric(raw string) Value {
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return Null()
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Null()
	}
	return Number(f)
}

// parseInteger accepts decimal notation and truncates toward zero, since CMS
// files frequently render whole numbers as "3.0".
func parseInteger(raw string) Value {
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return Null()
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Null()
	}
	return Integer(int64(f))
}

func parseDate(raw string) Value {
	if raw == "" || raw == "*" {
		return Null()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Date(t)
		}
	}
	return Null()
}

func parseBoolean(raw string) Value {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "*":
		return Bool(true)
	case "0", "false", "no", "n", "":
		return Bool(false)
	default:
		return Null()
	}
}
