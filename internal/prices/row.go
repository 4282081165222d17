package prices

// RawRecord is one untyped entry of the listing API "list" array.
type RawRecord map[string]any

// Column headers, in table order.
var Columns = []string{
	"一级分类", "二级分类", "品名", "最低价",
	"平均价", "最高价", "规格", "产地", "单位", "发布日期",
}

// Categories accepted by the listing API's prodCat filter.
var Categories = []string{"蔬菜", "水果", "肉禽蛋", "水产", "粮油", "豆制品", "调料"}

// Row is a normalized price record. Nil prices are null cells.
type Row struct {
	Category    string
	SubCategory string
	Name        string
	LowPrice    *float64
	AvgPrice    *float64
	HighPrice   *float64
	Spec        string
	Origin      string
	Unit        string
	PubDate     string
}

// Table keeps rows in fetch order.
type Table []Row

// Cells returns the row's values in column order. Null prices are nil.
func (r Row) Cells() []any {
	return []any{
		r.Category,
		r.SubCategory,
		r.Name,
		priceCell(r.LowPrice),
		priceCell(r.AvgPrice),
		priceCell(r.HighPrice),
		r.Spec,
		r.Origin,
		r.Unit,
		r.PubDate,
	}
}

// Raw converts the row back to the listing API field names.
func (r Row) Raw() RawRecord {
	return RawRecord{
		"prodCat":   r.Category,
		"prodPcat":  r.SubCategory,
		"prodName":  r.Name,
		"lowPrice":  FormatPrice(r.LowPrice),
		"avgPrice":  FormatPrice(r.AvgPrice),
		"highPrice": FormatPrice(r.HighPrice),
		"specInfo":  r.Spec,
		"place":     r.Origin,
		"unitInfo":  r.Unit,
		"pubDate":   r.PubDate,
	}
}

func priceCell(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// Raw converts every row back to raw form.
func (t Table) Raw() []RawRecord {
	out := make([]RawRecord, 0, len(t))
	for _, r := range t {
		out = append(out, r.Raw())
	}
	return out
}

// IsCategory reports whether name is one of the known first-level categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
