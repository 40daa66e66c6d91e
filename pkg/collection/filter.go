package collection

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/secmon-lab/searchlist/pkg/domain/model"
)

// Filter returns deep copies of every resident entity of this type that
// matches search on at least one searchable column. An empty search or a
// hidden collection yields an empty map without touching the cache.
//
// Values are looked up by the full column name, so relationship columns
// ("cats.name") are absent on the entity and never match here.
func (c *Collection) Filter(search string) map[string]*model.Entity {
	out := map[string]*model.Entity{}
	if search == "" || !c.config.Show || c.cache == nil {
		return out
	}

	columns := c.snapshot().columns
	upperSearch := strings.ToUpper(search)

	for id, e := range c.cache.Entities(c.config.Name) {
		if matchEntity(e, columns, search, upperSearch) {
			out[id] = e.Clone()
		}
	}
	return out
}

func matchEntity(e *model.Entity, columns []model.Column, search, upperSearch string) bool {
	for _, col := range columns {
		if !col.Searchable {
			continue
		}
		v, ok := e.Value(col.Name)
		if !ok {
			continue
		}
		s, ok := searchText(v)
		if !ok {
			continue
		}

		if col.CaseSensitive {
			if col.SearchOperator.Match(s, search) {
				return true
			}
		} else if col.SearchOperator.Match(strings.ToUpper(s), upperSearch) {
			return true
		}
	}
	return false
}

// searchText returns the text a scalar value is searched by. Nulls, objects
// and arrays have none.
func searchText(v any) (string, bool) {
	if v == nil || !model.IsScalar(v) {
		return "", false
	}
	return displayText(v), true
}

// displayText renders an attribute value as a grid cell
func displayText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
