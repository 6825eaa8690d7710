package coord

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/coordtest/internal/repr"
)

// The catalog has a single database and schema.
const (
	DefaultDatabase = "materialize"
	DefaultSchema   = "public"
)

// ItemKind is the kind of a catalog item.
type ItemKind int

const (
	ItemTable ItemKind = iota + 1
	ItemView
)

func (k ItemKind) String() string {
	if k == ItemView {
		return "view"
	}
	return "table"
}

type catalogItem struct {
	id      repr.ObjectID
	kind    ItemKind
	columns []column
}

// column is a result column of a catalog item. Only booleans are typed;
// storage does not keep them apart from integers.
type column struct {
	name    string
	boolean bool
}

type catalog struct {
	items  map[string]catalogItem
	nextID uint64
}

func newCatalog() *catalog {
	return &catalog{items: make(map[string]catalogItem)}
}

func (c *catalog) lookup(name string) (catalogItem, bool) {
	it, ok := c.items[name]
	return it, ok
}

// allocate assigns the next user id. Ids are never reused.
func (c *catalog) allocate() repr.ObjectID {
	c.nextID++
	return repr.UserObjectID(c.nextID)
}

// tables returns the ids of every table, ordered by name.
func (c *catalog) tables() []repr.ObjectID {
	names := make([]string, 0, len(c.items))
	for name, it := range c.items {
		if it.kind == ItemTable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	ids := make([]repr.ObjectID, len(names))
	for i, n := range names {
		ids[i] = c.items[n].id
	}
	return ids
}

// QualifiedName is the dotted three-part path of an item.
func QualifiedName(item string) string {
	return fmt.Sprintf("%s.%s.%s", DefaultDatabase, DefaultSchema, item)
}

type catalogDump map[string]databaseDump

type databaseDump struct {
	Schemas map[string]schemaDump `json:"schemas"`
}

type schemaDump struct {
	Items map[string]repr.ObjectID `json:"items"`
}

// dump renders the namespace as
// {"<db>": {"schemas": {"<schema>": {"items": {"<name>": "<id>"}}}}}.
func (c *catalog) dump() (string, error) {
	items := make(map[string]repr.ObjectID, len(c.items))
	for name, it := range c.items {
		items[name] = it.id
	}
	d := catalogDump{
		DefaultDatabase: {Schemas: map[string]schemaDump{
			DefaultSchema: {Items: items},
		}},
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal catalog: %w", err)
	}
	return string(b), nil
}

type catalogOp struct {
	create  bool
	name    string
	kind    ItemKind
	columns []column
}
