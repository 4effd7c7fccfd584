package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/port/launcher"
	"github.com/Strob0t/CloudLaunch/internal/port/messagequeue"
)

// mockLauncher records launched and stopped pods.
type mockLauncher struct {
	launched  []*run.Run
	stopped   []string
	launchErr error
}

var _ launcher.Launcher = (*mockLauncher)(nil)

func (l *mockLauncher) Launch(_ context.Context, r *run.Run) (string, error) {
	if l.launchErr != nil {
		return "", l.launchErr
	}
	cp := *r
	l.launched = append(l.launched, &cp)
	return fmt.Sprintf("run-%d", r.ID), nil
}

func (l *mockLauncher) Stop(_ context.Context, podID string) error {
	l.stopped = append(l.stopped, podID)
	return nil
}

func (l *mockLauncher) FindPod(_ context.Context, podID string) (*launcher.Pod, error) {
	return &launcher.Pod{ID: podID, Phase: "Running"}, nil
}

type mockQueue struct {
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func testRun(regionID int64) *run.Run {
	return &run.Run{
		DockerImage: "library/tool:latest",
		Owner:       "alice",
		Instance: run.Instance{
			CloudProvider: region.ProviderAWS,
			CloudRegionID: regionID,
			NodeType:      "m5.large",
			NodeCount:     1,
		},
	}
}

func TestRunServiceStart(t *testing.T) {
	store := newMockStore()
	l := &mockLauncher{}
	q := &mockQueue{}
	svc := NewRunService(store, l, q)

	r := testRun(1)
	if err := svc.Start(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID == 0 || r.Status != run.StatusPending || r.PodID == "" {
		t.Errorf("run not initialized: %+v", r)
	}
	if _, ok := store.runs[r.ID]; !ok {
		t.Error("run not persisted")
	}
	if len(q.published) != 1 || q.published[0].subject != messagequeue.SubjectRunCreated {
		t.Fatalf("published = %+v", q.published)
	}
	var payload messagequeue.RunCreatedPayload
	if err := json.Unmarshal(q.published[0].data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.RunID != r.ID || payload.RegionID != 1 || payload.PriceType != string(run.PriceTypeOnDemand) {
		t.Errorf("payload = %+v", payload)
	}
}

func TestRunServiceStartPersistFailureStopsPod(t *testing.T) {
	store := newMockStore()
	store.createRunErr = errors.New("db down")
	l := &mockLauncher{}
	svc := NewRunService(store, l, nil)

	err := svc.Start(context.Background(), testRun(1))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(l.stopped) != 1 {
		t.Errorf("orphaned pod not stopped: %v", l.stopped)
	}
}

func TestRunServiceStartLaunchFailure(t *testing.T) {
	store := newMockStore()
	svc := NewRunService(store, &mockLauncher{launchErr: errors.New("no capacity")}, nil)

	if err := svc.Start(context.Background(), testRun(1)); err == nil {
		t.Fatal("expected error")
	}
	if len(store.runs) != 0 {
		t.Error("failed launch must not be persisted")
	}
}

func TestRunServiceStartUsesGivenID(t *testing.T) {
	store := newMockStore()
	svc := NewRunService(store, &mockLauncher{}, nil)

	r := testRun(1)
	r.ID = 7
	if err := svc.Start(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.ID != 7 {
		t.Errorf("id = %d, want 7", r.ID)
	}
}

func TestRunServiceRestartChain(t *testing.T) {
	store := newMockStore()
	svc := NewRunService(store, &mockLauncher{}, nil)
	ctx := context.Background()

	root := testRun(1)
	if err := svc.Start(ctx, root); err != nil {
		t.Fatal(err)
	}
	second, err := svc.RestartRun(ctx, testRun(2), root.ID)
	if err != nil {
		t.Fatal(err)
	}
	third, err := svc.RestartRun(ctx, testRun(3), second.ID)
	if err != nil {
		t.Fatal(err)
	}

	link, err := svc.FindRestartByRestartedRunID(ctx, third.ID)
	if err != nil {
		t.Fatal(err)
	}
	if link.ParentRunID != second.ID || link.InitialRunID != root.ID {
		t.Errorf("link = %+v", link)
	}
	got, err := svc.Get(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.RestartedRuns) != 1 || got.RestartedRuns[0].RestartedRunID != second.ID {
		t.Errorf("restarted runs = %+v", got.RestartedRuns)
	}
}

func TestRunServiceRestartLinkFailureStopsPod(t *testing.T) {
	store := newMockStore()
	l := &mockLauncher{}
	svc := NewRunService(store, l, nil)
	ctx := context.Background()

	root := testRun(1)
	if err := svc.Start(ctx, root); err != nil {
		t.Fatal(err)
	}
	store.createRestartErr = errors.New("db down")

	if _, err := svc.RestartRun(ctx, testRun(2), root.ID); err == nil {
		t.Fatal("expected error")
	}
	if len(store.runs) != 1 || len(store.links) != 0 {
		t.Errorf("runs = %d, links = %d; want only the root", len(store.runs), len(store.links))
	}
	if len(l.stopped) != 1 || l.stopped[0] == root.PodID {
		t.Errorf("stopped = %v, want the restarted pod only", l.stopped)
	}
}

func TestRunServiceRestartUnknownParent(t *testing.T) {
	svc := NewRunService(newMockStore(), &mockLauncher{}, nil)
	_, err := svc.RestartRun(context.Background(), testRun(1), 999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunServiceStop(t *testing.T) {
	store := newMockStore()
	l := &mockLauncher{}
	svc := NewRunService(store, l, nil)
	ctx := context.Background()

	r := testRun(1)
	if err := svc.Start(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if store.runs[r.ID].Status != run.StatusStopped || store.runs[r.ID].EndDate == nil {
		t.Errorf("run = %+v", store.runs[r.ID])
	}
	// Stopping again is a no-op.
	if err := svc.Stop(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if len(l.stopped) != 1 {
		t.Errorf("stopped = %v", l.stopped)
	}
}

func TestRunServiceUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    run.Status
		to      run.Status
		wantErr bool
	}{
		{"pending to running", run.StatusPending, run.StatusRunning, false},
		{"running to pausing", run.StatusRunning, run.StatusPausing, false},
		{"paused to resuming", run.StatusPaused, run.StatusResuming, false},
		{"pending to pausing", run.StatusPending, run.StatusPausing, true},
		{"success to running", run.StatusSuccess, run.StatusRunning, true},
		{"same status", run.StatusRunning, run.StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			store.runs[1] = &run.Run{ID: 1, Status: tt.from}
			svc := NewRunService(store, &mockLauncher{}, nil)

			err := svc.UpdateStatus(context.Background(), 1, tt.to)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrConflict) {
					t.Fatalf("expected conflict, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store.runs[1].Status != tt.to {
				t.Errorf("status = %s, want %s", store.runs[1].Status, tt.to)
			}
		})
	}
}

func TestRunServicePauseResume(t *testing.T) {
	store := newMockStore()
	store.runs[1] = &run.Run{ID: 1, Status: run.StatusRunning}
	svc := NewRunService(store, &mockLauncher{}, nil)
	ctx := context.Background()

	if err := svc.Pause(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.Resume(ctx, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("resume from PAUSING must conflict, got %v", err)
	}
	store.runs[1].Status = run.StatusPaused
	if err := svc.Resume(ctx, 1); err != nil {
		t.Fatal(err)
	}
}

func TestRunServiceHandleStatus(t *testing.T) {
	store := newMockStore()
	store.runs[1] = &run.Run{ID: 1, Status: run.StatusRunning}
	svc := NewRunService(store, &mockLauncher{}, nil)
	ctx := context.Background()

	data, _ := json.Marshal(messagequeue.RunStatusPayload{RunID: 1, Status: string(run.StatusSuccess)})
	if err := svc.HandleStatus(ctx, messagequeue.SubjectRunStatus, data); err != nil {
		t.Fatal(err)
	}
	if store.runs[1].Status != run.StatusSuccess || store.runs[1].EndDate == nil {
		t.Errorf("run = %+v", store.runs[1])
	}

	// Illegal transitions are dropped, not redelivered.
	data, _ = json.Marshal(messagequeue.RunStatusPayload{RunID: 1, Status: string(run.StatusRunning)})
	if err := svc.HandleStatus(ctx, messagequeue.SubjectRunStatus, data); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := svc.HandleStatus(ctx, messagequeue.SubjectRunStatus, []byte("{")); err == nil {
		t.Error("expected decode error")
	}
}
