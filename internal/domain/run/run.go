// Package run defines the Run domain entity: a unit of compute execution
// placed in a cloud region.
package run

import (
	"time"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

// PriceType is the billing mode of a launched instance.
type PriceType string

const (
	PriceTypeSpot     PriceType = "spot"
	PriceTypeOnDemand PriceType = "on_demand"
)

// PriceTypeOf maps the spot flag to a PriceType. Unset means on-demand.
func PriceTypeOf(spot *bool) PriceType {
	if spot != nil && *spot {
		return PriceTypeSpot
	}
	return PriceTypeOnDemand
}

// Instance describes where and on what a run executes. Fields are fixed once
// the run starts; moving a run means creating a new run record.
type Instance struct {
	CloudProvider region.Provider `json:"cloud_provider"`
	CloudRegionID int64           `json:"cloud_region_id"`
	NodeType      string          `json:"node_type,omitempty"`
	Spot          bool            `json:"spot"`
	NodeDisk      int             `json:"node_disk,omitempty"`
	NodeCount     int             `json:"node_count,omitempty"`
}

// Run is a single execution of a docker image with a resolved configuration.
type Run struct {
	ID                    int64         `json:"id"`
	Status                Status        `json:"status"`
	Instance              Instance      `json:"instance"`
	ParentRunID           *int64        `json:"parent_run_id,omitempty"`
	PipelineID            *int64        `json:"pipeline_id,omitempty"`
	ToolID                *int64        `json:"tool_id,omitempty"`
	Version               string        `json:"version,omitempty"`
	DockerImage           string        `json:"docker_image"`
	CmdTemplate           string        `json:"cmd_template,omitempty"`
	PipelineRunParameters Parameters    `json:"pipeline_run_parameters,omitempty"`
	Owner                 string        `json:"owner"`
	PodID                 string        `json:"pod_id,omitempty"`
	EstimatedPrice        float64       `json:"estimated_price"`
	StartDate             time.Time     `json:"start_date"`
	EndDate               *time.Time    `json:"end_date,omitempty"`
	RestartedRuns         []RestartLink `json:"restarted_runs,omitempty"`
}

// IsWorker reports whether the run was spawned by a parent run.
func (r *Run) IsWorker() bool { return r.ParentRunID != nil }

// IsCluster reports whether the run spans more than one node.
func (r *Run) IsCluster() bool { return r.Instance.NodeCount > 1 }

// Clone returns a deep copy suitable for creating a restarted run.
func (r *Run) Clone() Run {
	out := *r
	out.PipelineRunParameters = r.PipelineRunParameters.Clone()
	out.RestartedRuns = nil
	if r.ParentRunID != nil {
		id := *r.ParentRunID
		out.ParentRunID = &id
	}
	if r.PipelineID != nil {
		id := *r.PipelineID
		out.PipelineID = &id
	}
	if r.ToolID != nil {
		id := *r.ToolID
		out.ToolID = &id
	}
	out.EndDate = nil
	return out
}

// RestartLink records that RestartedRunID replaced ParentRunID. InitialRunID
// is the root of the chain.
type RestartLink struct {
	ParentRunID    int64     `json:"parent_run_id"`
	RestartedRunID int64     `json:"restarted_run_id"`
	InitialRunID   int64     `json:"initial_run_id"`
	Date           time.Time `json:"date"`
}

// LaunchRequest is the caller-supplied part of a launch. Zero values mean
// "inherit from the configuration chain".
type LaunchRequest struct {
	PipelineID        *int64     `json:"pipeline_id,omitempty"`
	Version           string     `json:"version,omitempty"`
	ConfigurationName string     `json:"configuration_name,omitempty"`
	DockerImage       string     `json:"docker_image,omitempty"`
	CmdTemplate       string     `json:"cmd_template,omitempty"`
	InstanceType      string     `json:"instance_type,omitempty"`
	HddSize           int        `json:"hdd_size,omitempty"`
	CloudRegionID     *int64     `json:"cloud_region_id,omitempty"`
	IsSpot            *bool      `json:"is_spot,omitempty"`
	NodeCount         *int       `json:"node_count,omitempty"`
	Params            Parameters `json:"params,omitempty"`
	ParentNodeID      *int64     `json:"parent_node_id,omitempty"`
	UseRunID          *int64     `json:"use_run_id,omitempty"`
	Owner             string     `json:"owner"`
}

// Configuration returns the request's explicit fields as a Configuration.
func (r *LaunchRequest) Configuration() Configuration {
	return Configuration{
		DockerImage:   r.DockerImage,
		CmdTemplate:   r.CmdTemplate,
		InstanceType:  r.InstanceType,
		InstanceDisk:  r.HddSize,
		CloudRegionID: r.CloudRegionID,
		IsSpot:        r.IsSpot,
		NodeCount:     r.NodeCount,
		Parameters:    r.Params,
	}
}
