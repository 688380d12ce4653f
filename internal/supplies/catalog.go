// Package supplies maps drug test types to the consumables a completed test uses.
package supplies

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog names shipped with the console.
const (
	CatalogCurrent = "current"
	CatalogLegacy  = "legacy"
)

// ErrUnknownCatalog is returned when a catalog name is not recognised.
var ErrUnknownCatalog = errors.New("supplies: unknown catalog")

// Requirement is one consumable used by a test.
type Requirement struct {
	ItemName string `yaml:"item" json:"itemName"`
	Quantity int    `yaml:"quantity" json:"quantity"`
}

// Catalog maps a lower-case test type to its requirements.
type Catalog struct {
	Name  string
	Tests map[string][]Requirement
}

// Current returns the catalog for the current product range. Oral tests can
// be scheduled but consume no tracked supplies.
func Current() Catalog {
	return Catalog{
		Name: CatalogCurrent,
		Tests: map[string][]Requirement{
			"urine":  {{ItemName: "Urine Test Cups", Quantity: 1}},
			"breath": {{ItemName: "Breathalyzer Cartridges", Quantity: 1}},
		},
	}
}

// Legacy returns the catalog covering the test types offered before the
// current product range, including multi-item blood tests.
func Legacy() Catalog {
	return Catalog{
		Name: CatalogLegacy,
		Tests: map[string][]Requirement{
			"urine":  {{ItemName: "Urine Test Cups", Quantity: 1}},
			"hair":   {{ItemName: "Hair Test Vials", Quantity: 1}},
			"saliva": {{ItemName: "Saliva Test Strips", Quantity: 1}},
			"blood": {
				{ItemName: "Blood Test Vials", Quantity: 2},
				{ItemName: "Blood Test Needles", Quantity: 1},
			},
			"breath": {{ItemName: "Breathalyzer Cartridges", Quantity: 1}},
		},
	}
}

// Named returns a built-in catalog by name.
func Named(name string) (Catalog, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CatalogCurrent:
		return Current(), nil
	case CatalogLegacy:
		return Legacy(), nil
	}
	return Catalog{}, fmt.Errorf("%w: %q", ErrUnknownCatalog, name)
}

// Requirements returns the consumables for testType and whether it is known.
func (c Catalog) Requirements(testType string) ([]Requirement, bool) {
	reqs, ok := c.Tests[strings.ToLower(strings.TrimSpace(testType))]
	if !ok {
		return nil, false
	}
	out := make([]Requirement, len(reqs))
	copy(out, reqs)
	return out, true
}

// Supports reports whether testType has an entry.
func (c Catalog) Supports(testType string) bool {
	_, ok := c.Requirements(testType)
	return ok
}

// TestTypes lists the known test types in sorted order.
func (c Catalog) TestTypes() []string {
	out := make([]string, 0, len(c.Tests))
	for k := range c.Tests {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ItemNames lists every consumable referenced by the catalog, sorted and deduplicated.
func (c Catalog) ItemNames() []string {
	seen := make(map[string]struct{})
	for _, reqs := range c.Tests {
		for _, r := range reqs {
			seen[r.ItemName] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type catalogFile struct {
	Name  string                   `yaml:"name"`
	Tests map[string][]Requirement `yaml:"tests"`
}

// Parse decodes a YAML catalog document.
//
//	name: clinic
//	tests:
//	  urine:
//	    - item: Urine Test Cups
//	      quantity: 1
func Parse(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, fmt.Errorf("supplies: decode catalog: %w", err)
	}
	if len(file.Tests) == 0 {
		return Catalog{}, errors.New("supplies: catalog defines no tests")
	}

	cat := Catalog{Name: strings.TrimSpace(file.Name), Tests: make(map[string][]Requirement, len(file.Tests))}
	if cat.Name == "" {
		cat.Name = "custom"
	}
	for testType, reqs := range file.Tests {
		key := strings.ToLower(strings.TrimSpace(testType))
		if key == "" {
			return Catalog{}, errors.New("supplies: empty test type")
		}
		for i, r := range reqs {
			if strings.TrimSpace(r.ItemName) == "" {
				return Catalog{}, fmt.Errorf("supplies: %s requirement %d has no item", key, i)
			}
			if r.Quantity <= 0 {
				return Catalog{}, fmt.Errorf("supplies: %s requirement %q must use a positive quantity", key, r.ItemName)
			}
			reqs[i].ItemName = strings.TrimSpace(r.ItemName)
		}
		cat.Tests[key] = reqs
	}
	return cat, nil
}

// Load reads a catalog from path.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("supplies: read %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal encodes c as YAML, suitable for Parse.
func Marshal(c Catalog) ([]byte, error) {
	return yaml.Marshal(catalogFile{Name: c.Name, Tests: c.Tests})
}
