package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/coordtest/internal/repr"
)

// Catalog is a snapshot of the coordinator's namespace. It is taken fresh
// for every directive that needs one and never cached.
type Catalog struct {
	root gjson.Result
}

// Catalog dumps the namespace through a fresh session.
func (ct *CoordTest) Catalog(ctx context.Context) (*Catalog, error) {
	var raw string
	err := ct.WithSession(ctx, func(ctx context.Context, s *Session) error {
		var err error
		raw, err = s.client.DumpCatalog(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dump catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog reads a dump of the form
// {"<db>": {"schemas": {"<schema>": {"items": {"<name>": "<id>"}}}}}.
func ParseCatalog(raw string) (*Catalog, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid catalog dump: %q", raw)
	}
	return &Catalog{root: gjson.Parse(raw)}, nil
}

// Resolve maps "database.schema.item" to an object id.
func (c *Catalog) Resolve(path string) (repr.ObjectID, error) {
	parts := strings.Split(path, ".")
	if len(parts) != 3 {
		return "", protocolf("object path %q must have exactly 3 components, has %d", path, len(parts))
	}
	// Names are stored lower-cased and NFC-normalized.
	for i := range parts {
		parts[i] = repr.NormalizeIdent(strings.ToLower(parts[i]))
	}

	databases := c.root.Map()
	db, ok := databases[parts[0]]
	if !ok {
		return "", notFoundf("database %q not found, have: %s", parts[0], keys(databases))
	}
	schemas := db.Get("schemas").Map()
	schema, ok := schemas[parts[1]]
	if !ok {
		return "", notFoundf("schema %q not found in %s, have: %s", parts[1], parts[0], keys(schemas))
	}
	items := schema.Get("items").Map()
	item, ok := items[parts[2]]
	if !ok {
		return "", notFoundf("%s not found, have: %s", parts[2], keys(items))
	}
	return repr.ObjectID(item.String()), nil
}

// YAML renders the snapshot with keys in sorted order.
func (c *Catalog) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.root.Value()); err != nil {
		return "", fmt.Errorf("render catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("render catalog: %w", err)
	}
	return buf.String(), nil
}

func keys(m map[string]gjson.Result) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return "[" + strings.Join(out, ", ") + "]"
}
