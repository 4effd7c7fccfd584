package run_test

import (
	"errors"
	"testing"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestLaunchRequestValidate_ParentAndUseRunID(t *testing.T) {
	req := &run.LaunchRequest{ParentNodeID: int64Ptr(1), UseRunID: int64Ptr(2)}
	err := req.Validate()
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLaunchRequestValidate_ParentNodeAndParentParam(t *testing.T) {
	req := &run.LaunchRequest{
		ParentNodeID: int64Ptr(1),
		Params:       run.Parameters{run.ParentIDParam: {Value: "1"}},
	}
	if err := req.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLaunchRequestParentRunID(t *testing.T) {
	tests := []struct {
		name string
		req  run.LaunchRequest
		want *int64
	}{
		{name: "none", req: run.LaunchRequest{}, want: nil},
		{name: "explicit", req: run.LaunchRequest{ParentNodeID: int64Ptr(7)}, want: int64Ptr(7)},
		{name: "param", req: run.LaunchRequest{Params: run.Parameters{"parent-id": {Value: "9"}}}, want: int64Ptr(9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.ParentRunID()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLaunchRequestParentRunID_NotNumeric(t *testing.T) {
	req := run.LaunchRequest{Params: run.Parameters{"parent-id": {Value: "abc"}}}
	if _, err := req.ParentRunID(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to run.Status
		want     bool
	}{
		{run.StatusPending, run.StatusRunning, true},
		{run.StatusRunning, run.StatusPausing, true},
		{run.StatusPausing, run.StatusPaused, true},
		{run.StatusPaused, run.StatusResuming, true},
		{run.StatusResuming, run.StatusRunning, true},
		{run.StatusPending, run.StatusPausing, false},
		{run.StatusSuccess, run.StatusRunning, false},
		{run.StatusStopped, run.StatusPending, false},
	}
	for _, tt := range tests {
		if got := run.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMerge_OverrideWins(t *testing.T) {
	base := run.Configuration{
		DockerImage:  "library/base:1",
		InstanceType: "m5.large",
		InstanceDisk: 50,
		Parameters:   run.Parameters{"a": {Value: "1"}, "b": {Value: "2"}},
	}
	override := run.Configuration{
		InstanceType: "m5.xlarge",
		IsSpot:       boolPtr(true),
		Parameters:   run.Parameters{"b": {Value: "3"}},
	}

	got := run.Merge(base, override)

	if got.DockerImage != "library/base:1" {
		t.Errorf("expected base image, got %s", got.DockerImage)
	}
	if got.InstanceType != "m5.xlarge" {
		t.Errorf("expected override instance type, got %s", got.InstanceType)
	}
	if got.InstanceDisk != 50 {
		t.Errorf("expected disk 50, got %d", got.InstanceDisk)
	}
	if got.IsSpot == nil || !*got.IsSpot {
		t.Error("expected spot from override")
	}
	if got.Parameters["a"].Value != "1" || got.Parameters["b"].Value != "3" {
		t.Errorf("unexpected parameters %v", got.Parameters)
	}
	if base.Parameters["b"].Value != "2" {
		t.Error("merge must not mutate base parameters")
	}
}

func TestEntries(t *testing.T) {
	entries := []run.ConfigurationEntry{
		{Name: "small"},
		{Name: "default", Default: true},
	}
	if e, ok := run.DefaultEntry(entries); !ok || e.Name != "default" {
		t.Fatalf("expected default entry, got %+v", e)
	}
	if _, ok := run.FindEntry(entries, "missing"); ok {
		t.Fatal("expected missing entry")
	}
}

func TestParametersCloudDependent(t *testing.T) {
	tests := []struct {
		name   string
		params run.Parameters
		want   bool
	}{
		{name: "s3", params: run.Parameters{"input": {Value: "s3://bucket/x"}}, want: true},
		{name: "upper case scheme", params: run.Parameters{"input": {Value: "GS://bucket"}}, want: true},
		{name: "list", params: run.Parameters{"input": {Value: "/local/a, az://acc/b"}}, want: true},
		{name: "http", params: run.Parameters{"input": {Value: "https://example.com"}}, want: false},
		{name: "plain", params: run.Parameters{"n": {Value: "10"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.CloudDependent(run.DefaultCloudDependentSchemes); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunClone(t *testing.T) {
	r := run.Run{
		ID:                    1,
		ParentRunID:           int64Ptr(5),
		PipelineRunParameters: run.Parameters{"x": {Value: "1"}},
		RestartedRuns:         []run.RestartLink{{ParentRunID: 1, RestartedRunID: 2}},
	}
	c := r.Clone()
	c.PipelineRunParameters["x"] = run.Parameter{Value: "2"}
	*c.ParentRunID = 6

	if r.PipelineRunParameters["x"].Value != "1" {
		t.Error("clone shares parameters")
	}
	if *r.ParentRunID != 5 {
		t.Error("clone shares parent id")
	}
	if c.RestartedRuns != nil {
		t.Error("clone must drop restart history")
	}
}

func TestPriceTypeOf(t *testing.T) {
	if run.PriceTypeOf(nil) != run.PriceTypeOnDemand {
		t.Error("nil spot must be on-demand")
	}
	if run.PriceTypeOf(boolPtr(true)) != run.PriceTypeSpot {
		t.Error("spot=true must be spot")
	}
}
