package scrape

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Plan enumerates the regions and categories a run should cover.
type Plan struct {
	Regions    []string   `yaml:"regions"`
	Categories []Category `yaml:"categories"`
}

// Category is one venue category, optionally split into subcategories that
// each become their own work units.
type Category struct {
	Name          string   `yaml:"name"`
	Subcategories []string `yaml:"subcategories,omitempty"`
}

// UnmarshalYAML accepts either a bare category name or the full mapping
// form with subcategories.
func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Name = value.Value
		return nil
	}

	type plain Category
	var p plain
	if err := value.Decode(&p); err != nil {
		return eris.Wrap(err, "scrape: decode category")
	}
	*c = Category(p)
	return nil
}

// LoadPlan reads and validates a YAML scrape plan.
func LoadPlan(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: read plan %s", path)
	}

	var plan Plan
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return nil, eris.Wrapf(err, "scrape: parse plan %s", path)
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate rejects empty plans and unnamed categories.
func (p *Plan) Validate() error {
	if len(p.Regions) == 0 {
		return eris.New("scrape: plan has no regions")
	}
	if len(p.Categories) == 0 {
		return eris.New("scrape: plan has no categories")
	}
	for _, c := range p.Categories {
		if c.Name == "" {
			return eris.New("scrape: plan category missing name")
		}
	}
	return nil
}
