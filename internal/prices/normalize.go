package prices

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Normalize maps raw listing records onto the fixed 10-column layout.
// Records are never rejected; unparsable prices become nil.
func Normalize(raw []RawRecord) Table {
	table := make(Table, 0, len(raw))
	nullPrices := 0

	for _, item := range raw {
		row := normalizeRecord(item)
		if row.LowPrice == nil || row.AvgPrice == nil || row.HighPrice == nil {
			nullPrices++
		}
		table = append(table, row)
	}

	log.Debug().
		Int("records", len(raw)).
		Int("rows_with_null_price", nullPrices).
		Msg("Normalized price records")

	return table
}

func normalizeRecord(item RawRecord) Row {
	// prodCat carries the category name; prodPcat is usually empty.
	category := stringField(item, "prodCat")
	if category == "" {
		category = stringField(item, "prodPcat")
	}

	return Row{
		Category:    category,
		SubCategory: stringField(item, "prodPcat"),
		Name:        stringField(item, "prodName"),
		LowPrice:    ParsePrice(item["lowPrice"]),
		AvgPrice:    ParsePrice(item["avgPrice"]),
		HighPrice:   ParsePrice(item["highPrice"]),
		Spec:        stringField(item, "specInfo"),
		Origin:      stringField(item, "place"),
		Unit:        stringField(item, "unitInfo"),
		PubDate:     stringField(item, "pubDate"),
	}
}

// FilterCategory keeps rows whose Category equals category exactly.
// The listing API's own prodCat filter is not reliable enough on its own.
func FilterCategory(table Table, category string) Table {
	filtered := make(Table, 0, len(table))
	for _, row := range table {
		if row.Category == category {
			filtered = append(filtered, row)
		}
	}

	if len(filtered) < len(table) {
		log.Info().
			Str("category", category).
			Int("before", len(table)).
			Int("after", len(filtered)).
			Msg("Applied local category filter")
	}
	return filtered
}

// ParsePrice coerces a listing value to a float. Anything that is not a
// finite number yields nil.
func ParsePrice(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FormatPrice renders a price with the shortest exact representation.
// Nil renders as the empty string.
func FormatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func stringField(item RawRecord, key string) string {
	switch v := item[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
