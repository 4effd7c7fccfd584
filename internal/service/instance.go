package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/instance"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/port/database"
)

// InstanceService answers instance offer and price questions for a region.
type InstanceService struct {
	store database.OfferStore
}

// NewInstanceService creates a new InstanceService.
func NewInstanceService(store database.OfferStore) *InstanceService {
	return &InstanceService{store: store}
}

// Offers returns the instance offers of a region.
func (s *InstanceService) Offers(ctx context.Context, regionID int64) ([]instance.Offer, error) {
	return s.store.ListOffers(ctx, regionID)
}

// Estimate prices nodeCount nodes of instanceType in a region. A region
// without disk pricing contributes no disk cost.
func (s *InstanceService) Estimate(ctx context.Context, regionID int64, instanceType string, pt run.PriceType, diskGB, nodeCount int) (instance.Estimate, error) {
	offers, err := s.store.ListOffers(ctx, regionID)
	if err != nil {
		return instance.Estimate{}, err
	}
	offer, ok := instance.Find(offers, instanceType, pt)
	if !ok {
		return instance.Estimate{}, fmt.Errorf("no %s offer for %s in region %d: %w", pt, instanceType, regionID, domain.ErrNotFound)
	}
	var disk instance.DiskPrice
	dp, err := s.store.GetDiskPrice(ctx, regionID)
	switch {
	case err == nil:
		disk = *dp
	case !errors.Is(err, domain.ErrNotFound):
		return instance.Estimate{}, err
	}
	return instance.NewEstimate(offer, disk, diskGB, nodeCount), nil
}
