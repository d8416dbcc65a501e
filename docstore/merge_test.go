package docstore

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

type mergeEntry struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type mergeInner struct {
	City string `json:"city"`
}

type mergeRecord struct {
	Name    string       `json:"name"`
	Note    string       `json:"note,omitempty"`
	Address mergeInner   `json:"address"`
	Entries []mergeEntry `json:"entries"`
	Tags    map[string]any
	Skipped string `json:"-"`
}

func TestEncodeOver(t *testing.T) {
	c := qt.New(t)
	base := Document{
		"name":    "old",
		"note":    "dropped when the value omits it",
		"legacy":  map[string]any{"a": []any{1.0}},
		"Skipped": "kept, the field is not encoded",
		"address": map[string]any{"city": "Pune", "pin": "411001"},
		"entries": []any{
			map[string]any{"id": 7.0, "title": "seven", "color": "red"},
			map[string]any{"id": "gone", "color": "blue"},
		},
		"Tags": map[string]any{"x": 1.0},
	}
	doc, err := EncodeOver(base, &mergeRecord{
		Name:    "new",
		Address: mergeInner{City: "Goa"},
		Entries: []mergeEntry{{ID: "7"}, {ID: "fresh"}},
		Tags:    map[string]any{"y": 2.0},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(doc, qt.DeepEquals, Document{
		"name":    "new",
		"legacy":  map[string]any{"a": []any{1.0}},
		"Skipped": "kept, the field is not encoded",
		"address": map[string]any{"city": "Goa", "pin": "411001"},
		"entries": []any{
			map[string]any{"id": "7", "color": "red"},
			map[string]any{"id": "fresh"},
		},
		"Tags": map[string]any{"y": 2.0},
	})

	// the base is not shared with the result
	doc["legacy"].(map[string]any)["a"] = nil
	c.Assert(base["legacy"], qt.DeepEquals, map[string]any{"a": []any{1.0}})

	doc, err = EncodeOver(nil, &mergeRecord{Name: "n"})
	c.Assert(err, qt.IsNil)
	c.Assert(doc["name"], qt.Equals, "n")
}
