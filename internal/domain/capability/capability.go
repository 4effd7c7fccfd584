// Package capability expands "enable capability X" launch flags into the
// parameter bundles administrators declare for them.
package capability

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

// FlagPrefix starts every capability flag parameter name.
const FlagPrefix = "CP_CAP_CUSTOM_"

// Capability is a named bundle of launch parameters with at most one level
// of nested child capabilities.
type Capability struct {
	Name         string
	Description  string
	Params       []NamedParam
	Capabilities []Capability
}

// NamedParam is one parameter a capability injects.
type NamedParam struct {
	Name string
	run.Parameter
}

// Flag returns the launch parameter name that enables c.
func (c *Capability) Flag() string {
	return FlagPrefix + c.Name
}

// Set is an ordered list of capability declarations. Order follows the
// source document.
type Set []Capability

// UnmarshalYAML decodes a mapping of name to declaration, keeping order.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	caps, err := decodeCapabilities(node, 0)
	if err != nil {
		return err
	}
	*s = caps
	return nil
}

func decodeCapabilities(node *yaml.Node, depth int) ([]Capability, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: capabilities must be a mapping", node.Line)
	}
	out := make([]Capability, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		c, err := decodeCapability(name, node.Content[i+1], depth)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeCapability(name string, node *yaml.Node, depth int) (Capability, error) {
	c := Capability{Name: name}
	if node.Kind != yaml.MappingNode {
		return c, fmt.Errorf("capability %q: line %d: expected a mapping", name, node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "description":
			c.Description = val.Value
		case "params":
			params, err := decodeParams(name, val)
			if err != nil {
				return c, err
			}
			c.Params = params
		case "capabilities":
			if depth > 0 {
				return c, fmt.Errorf("capability %q: nested capabilities allow one level only", name)
			}
			children, err := decodeCapabilities(val, depth+1)
			if err != nil {
				return c, fmt.Errorf("capability %q: %w", name, err)
			}
			c.Capabilities = children
		default:
			return c, fmt.Errorf("capability %q: unknown field %q", name, key)
		}
	}
	return c, nil
}

func decodeParams(capName string, node *yaml.Node) ([]NamedParam, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("capability %q: params must be a mapping", capName)
	}
	out := make([]NamedParam, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		p := NamedParam{Name: node.Content[i].Value}
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			p.Value = val.Value
			p.Type = run.ParamTypeString
		case yaml.MappingNode:
			if err := val.Decode(&p.Parameter); err != nil {
				return nil, fmt.Errorf("capability %q param %q: %w", capName, p.Name, err)
			}
			if p.Type == "" {
				p.Type = run.ParamTypeString
			}
		default:
			return nil, fmt.Errorf("capability %q param %q: unsupported value", capName, p.Name)
		}
		out = append(out, p)
	}
	return out, nil
}

type document struct {
	Capabilities Set `yaml:"capabilities"`
}

// Parse decodes a YAML document with a top-level "capabilities" mapping.
func Parse(data []byte) (Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse capabilities: %w", err)
	}
	return doc.Capabilities, nil
}

// LoadFromFile reads capability declarations from path. A missing file
// yields an empty set.
func LoadFromFile(path string) (Set, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read capabilities %s: %w", path, err)
	}
	return Parse(data)
}
