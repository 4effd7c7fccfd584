// Package tool defines registered docker tools and pipelines, the two
// sources of launch defaults.
package tool

import (
	"strings"

	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

// Tool is a registered docker image with launch defaults and policy.
type Tool struct {
	ID                   int64                      `json:"id"`
	Image                string                     `json:"image"`
	Defaults             run.Configuration          `json:"defaults"`
	AllowedInstanceTypes []string                   `json:"allowed_instance_types,omitempty"`
	AllowedPriceTypes    []run.PriceType            `json:"allowed_price_types,omitempty"`
	Versions             map[string]VersionSettings `json:"versions,omitempty"`
}

// VersionSettings holds the configuration entries of one tool version and
// the region the tool is pinned to, if any.
type VersionSettings struct {
	CloudRegionID  *int64                   `json:"cloud_region_id,omitempty"`
	Configurations []run.ConfigurationEntry `json:"configurations,omitempty"`
}

// Version returns the settings of a tag, falling back to "latest".
func (t *Tool) Version(tag string) (VersionSettings, bool) {
	if tag == "" {
		tag = "latest"
	}
	v, ok := t.Versions[tag]
	return v, ok
}

// Pipeline is a versioned workflow with named launch configurations.
type Pipeline struct {
	ID             int64                    `json:"id"`
	Name           string                   `json:"name"`
	Configurations []run.ConfigurationEntry `json:"configurations,omitempty"`
}

// ImageTag returns the tag part of a docker image reference, or "latest".
func ImageTag(image string) string {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon <= slash || colon == len(image)-1 {
		return "latest"
	}
	return image[colon+1:]
}

// ImageName strips the tag from a docker image reference.
func ImageName(image string) string {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon <= slash {
		return image
	}
	return image[:colon]
}
