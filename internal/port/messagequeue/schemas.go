package messagequeue

// RunCreatedPayload is the schema for runs.created messages.
type RunCreatedPayload struct {
	RunID          int64   `json:"run_id" validate:"gt=0"`
	ParentRunID    *int64  `json:"parent_run_id,omitempty" validate:"omitempty,gt=0"`
	RegionID       int64   `json:"region_id" validate:"gt=0"`
	Provider       string  `json:"provider" validate:"required"`
	InstanceType   string  `json:"instance_type,omitempty"`
	PriceType      string  `json:"price_type"`
	DockerImage    string  `json:"docker_image" validate:"required"`
	Owner          string  `json:"owner" validate:"required"`
	PodID          string  `json:"pod_id"`
	EstimatedPrice float64 `json:"estimated_price" validate:"gte=0"`
}

// RunStuckPayload is the schema for runs.stuck messages.
type RunStuckPayload struct {
	RunID  int64  `json:"run_id" validate:"gt=0"`
	Reason string `json:"reason,omitempty"`
}

// RunStatusPayload is the schema for runs.status messages.
type RunStatusPayload struct {
	RunID  int64  `json:"run_id" validate:"gt=0"`
	Status string `json:"status" validate:"required"`
}
