// Package instance defines instance offers, pricing and type allowances.
package instance

import (
	"path"
	"strings"

	"github.com/Strob0t/CloudLaunch/internal/domain/run"
)

// Offer is the hourly price of one instance type in one region.
type Offer struct {
	RegionID     int64         `json:"region_id"`
	InstanceType string        `json:"instance_type"`
	PriceType    run.PriceType `json:"price_type"`
	PricePerHour float64       `json:"price_per_hour"`
}

// DiskPrice is the hourly price of one GB of attached disk in a region.
type DiskPrice struct {
	RegionID       int64   `json:"region_id"`
	PricePerGBHour float64 `json:"price_per_gb_hour"`
}

// Estimate is the advisory hourly price of a run.
type Estimate struct {
	InstancePerHour float64 `json:"instance_per_hour"`
	DiskPerHour     float64 `json:"disk_per_hour"`
	NodeCount       int     `json:"node_count"`
}

// Total returns the combined hourly price for all nodes.
func (e Estimate) Total() float64 {
	n := e.NodeCount
	if n < 1 {
		n = 1
	}
	return (e.InstancePerHour + e.DiskPerHour) * float64(n)
}

// NewEstimate prices nodeCount nodes of offer with diskGB of disk each.
func NewEstimate(offer Offer, disk DiskPrice, diskGB, nodeCount int) Estimate {
	return Estimate{
		InstancePerHour: offer.PricePerHour,
		DiskPerHour:     disk.PricePerGBHour * float64(diskGB),
		NodeCount:       nodeCount,
	}
}

// Allowed reports whether instanceType matches any of the glob patterns.
// An empty pattern list allows everything.
func Allowed(instanceType string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ok, err := path.Match(p, instanceType); err == nil && ok {
			return true
		}
	}
	return false
}

// PriceTypeAllowed reports whether pt is in allowed. An empty list allows
// everything.
func PriceTypeAllowed(pt run.PriceType, allowed []run.PriceType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == pt {
			return true
		}
	}
	return false
}

// Find returns the offer for instanceType and pt among offers.
func Find(offers []Offer, instanceType string, pt run.PriceType) (Offer, bool) {
	for _, o := range offers {
		if o.InstanceType == instanceType && o.PriceType == pt {
			return o, true
		}
	}
	return Offer{}, false
}

// Offered reports whether any offer lists instanceType, regardless of price type.
func Offered(offers []Offer, instanceType string) bool {
	for _, o := range offers {
		if o.InstanceType == instanceType {
			return true
		}
	}
	return false
}
