package domain

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SVIRanking is a county's overall SVI percentile, nationally and within its
// state. Either may be missing in the source data.
type SVIRanking struct {
	National *float64 `json:"national"`
	State    *float64 `json:"state"`
}

// SVIRecord holds one county's SVI scores for a release year.
type SVIRecord struct {
	ReleaseYear    int                `json:"release_year"`
	OverallRanking SVIRanking         `json:"overall_ranking"`
	Themes         map[string]float64 `json:"themes"`
	Variables      map[string]float64 `json:"variables"`
}

// WithVariables returns a copy of r whose variable map holds only the named
// variables. Themes and rankings are copied unchanged.
func (r SVIRecord) WithVariables(keep map[string]bool) SVIRecord {
	out := r
	out.Themes = maps.Clone(r.Themes)
	out.Variables = make(map[string]float64, len(keep))
	for name, score := range r.Variables {
		if keep[name] {
			out.Variables[name] = score
		}
	}
	return out
}

// VariableNames returns the record's variable names in sorted order.
func (r SVIRecord) VariableNames() []string {
	return slices.Sorted(maps.Keys(r.Variables))
}

// SVIVariable describes one CDC SVI variable for semantic matching.
type SVIVariable struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	Theme       string `yaml:"theme"`
	Description string `yaml:"description"`
}

// SVICatalog is the static set of SVI variable descriptions plus the general
// domain text that is appended to each query before embedding.
type SVICatalog struct {
	Context   string        `yaml:"context"`
	Variables []SVIVariable `yaml:"variables"`

	byKey map[string]SVIVariable
}

//go:embed svi_catalog.yaml
var sviCatalogYAML []byte

var (
	defaultCatalog     *SVICatalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultSVICatalog returns the embedded catalog.
func DefaultSVICatalog() (*SVICatalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseSVICatalog(sviCatalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// ParseSVICatalog decodes a YAML catalog.
func ParseSVICatalog(data []byte) (*SVICatalog, error) {
	var c SVICatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse svi catalog: %w", err)
	}
	if len(c.Variables) == 0 {
		return nil, fmt.Errorf("parse svi catalog: no variables")
	}
	c.byKey = make(map[string]SVIVariable, 2*len(c.Variables))
	for _, v := range c.Variables {
		if v.Name == "" {
			return nil, fmt.Errorf("parse svi catalog: variable without name")
		}
		c.byKey[strings.ToLower(v.Name)] = v
		if v.Label != "" {
			c.byKey[strings.ToLower(v.Label)] = v
		}
	}
	return &c, nil
}

// Lookup finds a variable by code (EP_POV150) or label, case-insensitively.
func (c *SVICatalog) Lookup(name string) (SVIVariable, bool) {
	v, ok := c.byKey[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// DescriptionText is the text embedded for a variable. Variables missing from
// the catalog are described by their name alone.
func (c *SVICatalog) DescriptionText(name string) string {
	v, ok := c.Lookup(name)
	if !ok {
		return name
	}
	return fmt.Sprintf("%s (%s, %s): %s", v.Label, v.Name, v.Theme, v.Description)
}

// QueryText is the text embedded for a user query.
func (c *SVICatalog) QueryText(query string) string {
	if c.Context == "" {
		return query
	}
	return "Query: " + query + "\n\nContext: " + c.Context
}
