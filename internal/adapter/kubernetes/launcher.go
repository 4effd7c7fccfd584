package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/port/launcher"
)

const (
	labelRunID    = "cloudlaunch/run-id"
	labelRegionID = "cloudlaunch/region-id"
	labelProvider = "cloudlaunch/provider"
	labelSpot     = "cloudlaunch/spot"

	nodeSelectorInstanceType = "node.kubernetes.io/instance-type"
)

var _ launcher.Launcher = (*Launcher)(nil)

// Launcher runs each run as one pod named after the run id.
type Launcher struct {
	client         *Client
	serviceAccount string
}

// NewLauncher creates a pod launcher. serviceAccount may be empty.
func NewLauncher(client *Client, serviceAccount string) *Launcher {
	return &Launcher{client: client, serviceAccount: serviceAccount}
}

// PodName is the pod name of a run.
func PodName(runID int64) string {
	return "run-" + strconv.FormatInt(runID, 10)
}

func (l *Launcher) Launch(ctx context.Context, r *run.Run) (string, error) {
	pod := BuildPod(r, l.client.Namespace(), l.serviceAccount)
	var created Pod
	if err := l.client.call(ctx, http.MethodPost, l.client.path("pods", ""), contentJSON, pod, &created); err != nil {
		return "", fmt.Errorf("create pod for run %d: %w", r.ID, err)
	}
	if created.Metadata.Name == "" {
		return pod.Metadata.Name, nil
	}
	return created.Metadata.Name, nil
}

func (l *Launcher) Stop(ctx context.Context, podID string) error {
	if podID == "" {
		return nil
	}
	err := l.client.call(ctx, http.MethodDelete, l.client.path("pods", podID), "", nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete pod %s: %w", podID, err)
	}
	return nil
}

func (l *Launcher) FindPod(ctx context.Context, podID string) (*launcher.Pod, error) {
	var pod Pod
	if err := l.client.call(ctx, http.MethodGet, l.client.path("pods", podID), "", nil, &pod); err != nil {
		return nil, fmt.Errorf("get pod %s: %w", podID, err)
	}
	runID, _ := strconv.ParseInt(pod.Metadata.Labels[labelRunID], 10, 64)
	return &launcher.Pod{
		ID:     pod.Metadata.Name,
		RunID:  runID,
		Phase:  pod.Status.Phase,
		NodeIP: pod.Status.HostIP,
	}, nil
}

// BuildPod renders the pod manifest of r. Parameters become environment
// variables in name order.
func BuildPod(r *run.Run, namespace, serviceAccount string) Pod {
	env := []EnvVar{
		{Name: "RUN_ID", Value: strconv.FormatInt(r.ID, 10)},
		{Name: "CLOUD_PROVIDER", Value: string(r.Instance.CloudProvider)},
		{Name: "CLOUD_REGION_ID", Value: strconv.FormatInt(r.Instance.CloudRegionID, 10)},
		{Name: "OWNER", Value: r.Owner},
	}
	if r.ParentRunID != nil {
		env = append(env, EnvVar{Name: "PARENT_ID", Value: strconv.FormatInt(*r.ParentRunID, 10)})
	}
	names := make([]string, 0, len(r.PipelineRunParameters))
	for name := range r.PipelineRunParameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, EnvVar{Name: name, Value: r.PipelineRunParameters[name].Value})
	}

	container := Container{
		Name:  "main",
		Image: r.DockerImage,
		Env:   env,
	}
	if r.CmdTemplate != "" {
		container.Command = []string{"/bin/sh", "-c", r.CmdTemplate}
	}
	if r.Instance.NodeDisk > 0 {
		disk := strconv.Itoa(r.Instance.NodeDisk) + "Gi"
		container.Resources.Requests = map[string]string{"ephemeral-storage": disk}
	}

	var selector map[string]string
	if r.Instance.NodeType != "" {
		selector = map[string]string{nodeSelectorInstanceType: r.Instance.NodeType}
	}

	return Pod{
		APIVersion: "v1",
		Kind:       "Pod",
		Metadata: ObjectMeta{
			Name:      PodName(r.ID),
			Namespace: namespace,
			Labels: map[string]string{
				labelRunID:    strconv.FormatInt(r.ID, 10),
				labelRegionID: strconv.FormatInt(r.Instance.CloudRegionID, 10),
				labelProvider: string(r.Instance.CloudProvider),
				labelSpot:     strconv.FormatBool(r.Instance.Spot),
			},
		},
		Spec: PodSpec{
			RestartPolicy:      "Never",
			ServiceAccountName: serviceAccount,
			NodeSelector:       selector,
			Containers:         []Container{container},
		},
	}
}
