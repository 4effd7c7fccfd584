package run

// Configuration is a set of launch settings. Zero fields are "unset" and are
// filled from the next layer down when merged.
type Configuration struct {
	DockerImage   string     `json:"docker_image,omitempty" yaml:"docker_image,omitempty"`
	CmdTemplate   string     `json:"cmd_template,omitempty" yaml:"cmd_template,omitempty"`
	InstanceType  string     `json:"instance_type,omitempty" yaml:"instance_type,omitempty"`
	InstanceDisk  int        `json:"instance_disk,omitempty" yaml:"instance_disk,omitempty"`
	CloudRegionID *int64     `json:"cloud_region_id,omitempty" yaml:"cloud_region_id,omitempty"`
	IsSpot        *bool      `json:"is_spot,omitempty" yaml:"is_spot,omitempty"`
	NodeCount     *int       `json:"node_count,omitempty" yaml:"node_count,omitempty"`
	Parameters    Parameters `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ConfigurationEntry is a named configuration. At most one entry in a list
// is tagged Default.
type ConfigurationEntry struct {
	Name          string        `json:"name" yaml:"name"`
	Default       bool          `json:"default,omitempty" yaml:"default,omitempty"`
	Configuration Configuration `json:"configuration" yaml:"configuration"`
}

// FindEntry returns the entry with the given name.
func FindEntry(entries []ConfigurationEntry, name string) (ConfigurationEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return ConfigurationEntry{}, false
}

// DefaultEntry returns the entry tagged Default.
func DefaultEntry(entries []ConfigurationEntry) (ConfigurationEntry, bool) {
	for _, e := range entries {
		if e.Default {
			return e, true
		}
	}
	return ConfigurationEntry{}, false
}

// Merge returns a new Configuration where set fields of override replace
// base. Parameters are merged key by key with override winning.
func Merge(base, override Configuration) Configuration {
	out := base
	if override.DockerImage != "" {
		out.DockerImage = override.DockerImage
	}
	if override.CmdTemplate != "" {
		out.CmdTemplate = override.CmdTemplate
	}
	if override.InstanceType != "" {
		out.InstanceType = override.InstanceType
	}
	if override.InstanceDisk > 0 {
		out.InstanceDisk = override.InstanceDisk
	}
	if override.CloudRegionID != nil {
		out.CloudRegionID = override.CloudRegionID
	}
	if override.IsSpot != nil {
		out.IsSpot = override.IsSpot
	}
	if override.NodeCount != nil {
		out.NodeCount = override.NodeCount
	}
	if len(base.Parameters) > 0 || len(override.Parameters) > 0 {
		params := base.Parameters.Clone()
		if params == nil {
			params = make(Parameters, len(override.Parameters))
		}
		for k, v := range override.Parameters {
			params[k] = v
		}
		out.Parameters = params
	}
	return out
}
