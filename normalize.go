package vesta

import (
	"encoding/json"
	"strings"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

// normalizeRecords decodes the JSON-string columns produced by the
// compiler: the correlated relation sub-selects and object-typed
// fields. Decoding never fails a read; a value that does not parse is
// left as the raw string.
func (c *Client) normalizeRecords(q *Query, recs []Record) {
	ent := c.reg.Entity(q.Entity)
	if ent == nil {
		return
	}
	var jsonFields []string
	for _, r := range q.Relations {
		f := ent.Field(r.Name)
		if f != nil && f.Type == schema.TypeRelation &&
			(f.Relation.Kind == schema.OneToOne || f.Relation.Kind == schema.OneToMany) {
			jsonFields = append(jsonFields, r.Name)
		}
	}
	for i := range ent.Fields {
		if ent.Fields[i].Type == schema.TypeObject {
			jsonFields = append(jsonFields, ent.Fields[i].Name)
		}
	}
	if len(jsonFields) == 0 {
		return
	}
	for _, rec := range recs {
		for _, name := range jsonFields {
			if s, ok := rec[name].(string); ok && s != "" {
				rec[name] = parseLoose(s)
			}
		}
	}
}

// controlEscaper re-escapes raw control characters that SQL string
// concatenation leaves unescaped inside the generated JSON.
var controlEscaper = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// parseLoose decodes s as JSON, tolerating raw control characters. When
// the value still does not parse it is returned verbatim.
func parseLoose(s string) any {
	var v any
	if err := json.Unmarshal([]byte(controlEscaper.Replace(s)), &v); err != nil {
		return s
	}
	return v
}
