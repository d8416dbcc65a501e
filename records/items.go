package records

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// ItemID identifies a statement, child or item inside its parent list.
// New ids are UUIDs. Older documents used numeric timestamps, which are
// decoded into their decimal string form.
type ItemID string

// NewItemID returns a fresh random id.
func NewItemID() ItemID {
	return ItemID(uuid.NewString())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			*id = ItemID(strconv.FormatInt(i, 10))
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("invalid item id %s: %w", data, err)
		}
		*id = ItemID(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	return fmt.Errorf("invalid item id %s: expected number or string", data)
}

// identified is implemented by list entries.
type identified interface {
	EntryID() ItemID
	SetEntryID(ItemID)
}

// addEntry decodes raw into a new entry, assigns it a fresh id, validates it
// and appends it to the list. Ids sent by the client are ignored.
func addEntry[E any, PE interface {
	*E
	identified
}](list *[]E, raw []byte) (ItemID, error) {
	var e E
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", fmt.Errorf("invalid entry: %w", err)
		}
	}
	id := NewItemID()
	PE(&e).SetEntryID(id)
	if err := Validate(&e); err != nil {
		return "", err
	}
	*list = append(*list, e)
	return id, nil
}

// removeEntry deletes every entry with the given id.
func removeEntry[E any, PE interface {
	*E
	identified
}](list *[]E, id ItemID) bool {
	before := len(*list)
	*list = slices.DeleteFunc(*list, func(e E) bool {
		return PE(&e).EntryID() == id
	})
	return len(*list) != before
}

// ListRecord is implemented by records holding editable lists.
type ListRecord interface {
	// Lists returns the names of the editable lists.
	Lists() []string
	// AddEntry decodes raw as a new entry of the named list and returns
	// its id.
	AddEntry(list string, raw []byte) (ItemID, error)
	// RemoveEntry deletes the entry with the given id from the named list.
	RemoveEntry(list string, id ItemID) (bool, error)
}

// ErrUnknownList is returned for list names a record does not have.
var ErrUnknownList = fmt.Errorf("unknown list")

func unknownList(list string) error {
	return fmt.Errorf("%w %q", ErrUnknownList, list)
}
