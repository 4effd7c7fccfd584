package run

import (
	"fmt"
	"strconv"

	"github.com/Strob0t/CloudLaunch/internal/domain"
)

// ParentIDParam is the launch parameter through which worker runs may name
// their parent.
const ParentIDParam = "parent-id"

// Validate checks the request fields that do not need any lookup.
func (r *LaunchRequest) Validate() error {
	if r.ParentNodeID != nil && r.UseRunID != nil {
		return domain.Invalid("parent_node_id", strconv.FormatInt(*r.ParentNodeID, 10),
			"cannot be combined with use_run_id %d", *r.UseRunID)
	}
	if r.HddSize < 0 {
		return domain.Invalid("hdd_size", strconv.Itoa(r.HddSize), "must be non-negative")
	}
	if r.NodeCount != nil && *r.NodeCount < 0 {
		return domain.Invalid("node_count", strconv.Itoa(*r.NodeCount), "must be non-negative")
	}
	if _, err := r.ParentRunID(); err != nil {
		return err
	}
	return nil
}

// ParentRunID resolves the parent run from either ParentNodeID or the
// parent-id parameter. Supplying both is an error.
func (r *LaunchRequest) ParentRunID() (*int64, error) {
	p, ok := r.Params[ParentIDParam]
	if !ok || p.Value == "" {
		return r.ParentNodeID, nil
	}
	if r.ParentNodeID != nil {
		return nil, domain.Invalid(ParentIDParam, p.Value,
			"cannot be combined with parent_node_id %d", *r.ParentNodeID)
	}
	id, err := strconv.ParseInt(p.Value, 10, 64)
	if err != nil {
		return nil, domain.Invalid(ParentIDParam, p.Value, "must be a run id")
	}
	return &id, nil
}

// Validate checks that a Run carries the fields needed to launch it.
func (r *Run) Validate() error {
	if r.DockerImage == "" {
		return fmt.Errorf("docker_image is required: %w", domain.ErrValidation)
	}
	if r.Instance.CloudRegionID == 0 {
		return fmt.Errorf("instance.cloud_region_id is required: %w", domain.ErrValidation)
	}
	if r.Instance.CloudProvider == "" {
		return fmt.Errorf("instance.cloud_provider is required: %w", domain.ErrValidation)
	}
	if r.Instance.NodeDisk < 0 {
		return fmt.Errorf("instance.node_disk must be non-negative: %w", domain.ErrValidation)
	}
	return nil
}
