package capability

import (
	"strconv"
	"strings"

	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

// Processor applies enabled capabilities to launch parameters.
type Processor struct {
	caps Set
}

// NewProcessor creates a Processor over the given declarations.
func NewProcessor(caps Set) *Processor {
	return &Processor{caps: caps}
}

// Process returns params with the params of every enabled capability merged
// in. Capabilities fold left to right in declaration order; a child only
// applies when its own flag is set. The input map is not modified.
func (p *Processor) Process(params run.Parameters) run.Parameters {
	out := params.Clone()
	if out == nil {
		out = run.Parameters{}
	}
	for i := range p.caps {
		c := &p.caps[i]
		if enabled(params, c.Name) {
			apply(out, c)
		}
		for j := range c.Capabilities {
			child := &c.Capabilities[j]
			if enabled(params, child.Name) {
				apply(out, child)
			}
		}
	}
	return out
}

// Enabled lists the names of the capabilities whose flags are set.
func (p *Processor) Enabled(params run.Parameters) []string {
	var names []string
	for i := range p.caps {
		c := &p.caps[i]
		if enabled(params, c.Name) {
			names = append(names, c.Name)
		}
		for j := range c.Capabilities {
			if enabled(params, c.Capabilities[j].Name) {
				names = append(names, c.Capabilities[j].Name)
			}
		}
	}
	return names
}

func enabled(params run.Parameters, name string) bool {
	for key, v := range params {
		if len(key) <= len(FlagPrefix) || !strings.EqualFold(key[:len(FlagPrefix)], FlagPrefix) {
			continue
		}
		if !strings.EqualFold(key[len(FlagPrefix):], name) {
			continue
		}
		if on, err := strconv.ParseBool(strings.TrimSpace(v.Value)); err == nil && on {
			return true
		}
	}
	return false
}

func apply(out run.Parameters, c *Capability) {
	for _, p := range c.Params {
		existing, ok := out[p.Name]
		if !ok {
			out[p.Name] = p.Parameter
			continue
		}
		out[p.Name] = merge(existing, p.Parameter)
	}
}

// merge combines two values of the same parameter by type: integers take
// the maximum, booleans let false win, everything else is a comma-joined
// list of distinct values in first-seen order.
func merge(existing, incoming run.Parameter) run.Parameter {
	typ := incoming.Type
	if typ == "" || typ == run.ParamTypeString {
		if existing.Type != "" {
			typ = existing.Type
		}
	}
	out := run.Parameter{Type: existing.Type}
	if out.Type == "" {
		out.Type = incoming.Type
	}

	switch typ {
	case run.ParamTypeInt:
		a, errA := strconv.ParseInt(strings.TrimSpace(existing.Value), 10, 64)
		b, errB := strconv.ParseInt(strings.TrimSpace(incoming.Value), 10, 64)
		if errA == nil && errB == nil {
			out.Value = strconv.FormatInt(max(a, b), 10)
			return out
		}
	case run.ParamTypeBoolean:
		a, errA := strconv.ParseBool(strings.TrimSpace(existing.Value))
		b, errB := strconv.ParseBool(strings.TrimSpace(incoming.Value))
		if errA == nil && errB == nil {
			out.Value = strconv.FormatBool(a && b)
			return out
		}
	}
	out.Value = joinDistinct(existing.Value, incoming.Value)
	return out
}

func joinDistinct(values ...string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ",")
}
