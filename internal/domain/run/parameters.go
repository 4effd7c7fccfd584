package run

import "strings"

// Parameter types understood by the capability merge rules. Any other type
// merges as a string.
const (
	ParamTypeString  = "string"
	ParamTypeInt     = "int"
	ParamTypeBoolean = "boolean"
)

// Parameter is a typed launch parameter value.
type Parameter struct {
	Value string `json:"value" yaml:"value"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Parameters maps parameter names to values.
type Parameters map[string]Parameter

// DefaultCloudDependentSchemes are URI schemes that tie a parameter value to
// one cloud's storage.
var DefaultCloudDependentSchemes = []string{"s3", "az", "gs", "cp"}

// Clone returns a copy of p; nil stays nil.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// CloudDependent reports whether any value references a cloud storage URI
// with one of the given schemes. Comma-separated values are checked one by one.
func (p Parameters) CloudDependent(schemes []string) bool {
	for _, param := range p {
		for _, v := range strings.Split(param.Value, ",") {
			if hasScheme(strings.TrimSpace(v), schemes) {
				return true
			}
		}
	}
	return false
}

func hasScheme(v string, schemes []string) bool {
	idx := strings.Index(v, "://")
	if idx <= 0 {
		return false
	}
	scheme := strings.ToLower(v[:idx])
	for _, s := range schemes {
		if scheme == s {
			return true
		}
	}
	return false
}
