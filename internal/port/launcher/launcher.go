// Package launcher defines the port to the execution subsystem that
// starts run workloads.
package launcher

import (
	"context"

	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

// Pod is the execution handle of a launched run.
type Pod struct {
	ID     string
	RunID  int64
	Phase  string
	NodeIP string
}

// Launcher starts and stops run workloads.
type Launcher interface {
	// Launch starts r and returns its pod id.
	Launch(ctx context.Context, r *run.Run) (string, error)
	// Stop terminates the pod. Stopping a missing pod is not an error.
	Stop(ctx context.Context, podID string) error
	// FindPod returns the pod or an error wrapping domain.ErrNotFound.
	FindPod(ctx context.Context, podID string) (*Pod, error)
}
