package instance

import (
	"math"
	"testing"

	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		patterns []string
		want     bool
	}{
		{"no patterns", "m5.large", nil, true},
		{"exact", "m5.large", []string{"m5.large"}, true},
		{"glob", "m5.xlarge", []string{"c5.*", "m5.*"}, true},
		{"no match", "p3.2xlarge", []string{"m5.*"}, false},
		{"blank pattern ignored", "x", []string{" "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.typ, tt.patterns); got != tt.want {
				t.Errorf("Allowed(%q, %v) = %v, want %v", tt.typ, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestPriceTypeAllowed(t *testing.T) {
	if !PriceTypeAllowed(run.PriceTypeSpot, nil) {
		t.Error("empty list should allow")
	}
	if PriceTypeAllowed(run.PriceTypeSpot, []run.PriceType{run.PriceTypeOnDemand}) {
		t.Error("spot should be rejected")
	}
}

func TestEstimate(t *testing.T) {
	offers := []Offer{
		{RegionID: 1, InstanceType: "m5.large", PriceType: run.PriceTypeOnDemand, PricePerHour: 0.1},
		{RegionID: 1, InstanceType: "m5.large", PriceType: run.PriceTypeSpot, PricePerHour: 0.03},
	}
	o, ok := Find(offers, "m5.large", run.PriceTypeSpot)
	if !ok {
		t.Fatal("spot offer not found")
	}
	e := NewEstimate(o, DiskPrice{RegionID: 1, PricePerGBHour: 0.001}, 50, 2)
	if got, want := e.Total(), (0.03+0.05)*2; math.Abs(got-want) > 1e-9 {
		t.Errorf("Total = %v, want %v", got, want)
	}
	if !Offered(offers, "m5.large") || Offered(offers, "c5.large") {
		t.Error("Offered mismatch")
	}
}
