package remote

import (
	"encoding/json"
	"fmt"
)

// VariantKind tags the resolved shape of a loosely typed metadata field.
type VariantKind int

const (
	VariantText VariantKind = iota
	VariantList
	VariantMap
)

// Variant holds an ancillary metadata value that the server may send as a
// bare string, an array of strings, or a keyed object. It is resolved once
// here at the boundary and never threaded through core logic as raw JSON.
type Variant struct {
	Kind VariantKind
	Text string
	List []string
	Map  map[string]string
}

// UnmarshalJSON resolves the wire shape into the tagged form.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Variant{Kind: VariantText, Text: s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = Variant{Kind: VariantList, List: list}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err == nil {
		*v = Variant{Kind: VariantMap, Map: m}
		return nil
	}
	return fmt.Errorf("variant: unsupported shape %s", string(data))
}

// MarshalJSON writes the variant back in its resolved shape.
func (v Variant) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case VariantList:
		return json.Marshal(v.List)
	case VariantMap:
		return json.Marshal(v.Map)
	default:
		return json.Marshal(v.Text)
	}
}

// AsText flattens any shape to a single display string.
func (v Variant) AsText() string {
	switch v.Kind {
	case VariantText:
		return v.Text
	case VariantList:
		out := ""
		for i, s := range v.List {
			if i > 0 {
				out += ", "
			}
			out += s
		}
		return out
	case VariantMap:
		b, _ := json.Marshal(v.Map)
		return string(b)
	}
	return ""
}
