// Package bundle decodes and validates deployment bundles.
//
// A bundle is a declarative multi-service deployment specification. Two
// request layouts exist: legacy bundles, where the YAML payload maps bundle
// names to bundle bodies and the request may name which one to import, and
// v4 bundles, where the payload is a single bundle body identified by a
// bundle id.
package bundle

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// V4Name is the synthetic name assigned to v4 bundles, which are not named
// in their request payload.
const V4Name = "bundle-v4"

// Service is one service entry of a bundle.
type Service struct {
	Charm    string         `yaml:"charm" json:"Charm"`
	NumUnits int            `yaml:"num_units" json:"NumUnits"`
	Expose   bool           `yaml:"expose,omitempty" json:"Expose,omitempty"`
	Options  map[string]any `yaml:"options,omitempty" json:"Options,omitempty"`
	To       []string       `yaml:"to,omitempty" json:"To,omitempty"`
}

// Bundle is a decoded bundle body.
type Bundle struct {
	Series    string             `yaml:"series,omitempty" json:"Series,omitempty"`
	Services  map[string]Service `yaml:"services" json:"Services"`
	Machines  map[string]Machine `yaml:"machines,omitempty" json:"Machines,omitempty"`
	Relations [][]string         `yaml:"relations,omitempty" json:"Relations,omitempty"`
}

// Machine is a machine placement entry of a bundle.
type Machine struct {
	Series      string `yaml:"series,omitempty" json:"Series,omitempty"`
	Constraints string `yaml:"constraints,omitempty" json:"Constraints,omitempty"`
}

// ServiceNames returns the bundle's service names in lexical order.
func (b *Bundle) ServiceNames() []string {
	names := make([]string, 0, len(b.Services))
	for name := range b.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImportParams are the parameters of an Import request, before validation.
type ImportParams struct {
	Name     string
	YAML     string
	Version  int
	BundleID string
}

// ParseImportParams decodes and validates Import request parameters,
// returning the bundle name, the decoded bundle and the optional bundle id.
func ParseImportParams(params ImportParams) (string, *Bundle, string, error) {
	if params.YAML == "" {
		return "", nil, "", fmt.Errorf("invalid data parameters")
	}
	if params.Version == 4 {
		b, err := Decode(params.YAML)
		if err != nil {
			return "", nil, "", err
		}
		return V4Name, b, params.BundleID, nil
	}

	// Legacy payloads map bundle names to bundle bodies.
	var bundles map[string]*Bundle
	if err := yaml.Unmarshal([]byte(params.YAML), &bundles); err != nil {
		return "", nil, "", fmt.Errorf("invalid YAML contents: %v", err)
	}
	name := params.Name
	if name == "" {
		// The name is optional when the payload holds a single bundle.
		if len(bundles) != 1 {
			return "", nil, "", fmt.Errorf(
				"invalid data parameters: no bundle name provided")
		}
		for only := range bundles {
			name = only
		}
	}
	b := bundles[name]
	if b == nil {
		return "", nil, "", fmt.Errorf("bundle %s not found", name)
	}
	return name, b, params.BundleID, nil
}

// Decode unmarshals a single bundle body.
func Decode(content string) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal([]byte(content), &b); err != nil {
		return nil, fmt.Errorf("invalid YAML contents: %v", err)
	}
	return &b, nil
}

// Validate checks the bundle for structural problems and returns them all.
// An empty result means the bundle is deployable.
func Validate(b *Bundle) []string {
	var errors []string
	if len(b.Services) == 0 {
		errors = append(errors, "bundle does not declare any services")
	}
	for _, name := range b.ServiceNames() {
		svc := b.Services[name]
		if svc.Charm == "" {
			errors = append(errors,
				fmt.Sprintf("service %s does not declare a charm", name))
		}
		if svc.NumUnits < 0 {
			errors = append(errors,
				fmt.Sprintf("service %s declares a negative number of units", name))
		}
	}
	for _, relation := range b.Relations {
		if len(relation) != 2 {
			errors = append(errors,
				fmt.Sprintf("relation %v does not have two endpoints", relation))
			continue
		}
		for _, endpoint := range relation {
			if _, ok := b.Services[endpointService(endpoint)]; !ok {
				errors = append(errors, fmt.Sprintf(
					"relation endpoint %s refers to an undeclared service",
					endpoint))
			}
		}
	}
	return errors
}

// Prepare validates a bundle for import, collapsing all structural problems
// into a single error.
func Prepare(b *Bundle) error {
	if errors := Validate(b); len(errors) != 0 {
		return fmt.Errorf("%s", errors[0])
	}
	return nil
}

func endpointService(endpoint string) string {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == ':' {
			return endpoint[:i]
		}
	}
	return endpoint
}
