package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/CloudLaunch/internal/domain/instance"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/domain/tool"
)

// --- Tools & pipelines ---

func (s *Store) GetToolByImage(ctx context.Context, image string) (*tool.Tool, error) {
	var (
		t          tool.Tool
		defaults   []byte
		priceTypes []string
		versions   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, image, defaults, allowed_instance_types, allowed_price_types, versions
		 FROM tools WHERE image = $1`, image,
	).Scan(&t.ID, &t.Image, &defaults, &t.AllowedInstanceTypes, &priceTypes, &versions)
	if err != nil {
		return nil, dbErr(err, "get tool %s", image)
	}
	if err := json.Unmarshal(defaults, &t.Defaults); err != nil {
		return nil, fmt.Errorf("unmarshal defaults of tool %s: %w", image, err)
	}
	if err := json.Unmarshal(versions, &t.Versions); err != nil {
		return nil, fmt.Errorf("unmarshal versions of tool %s: %w", image, err)
	}
	for _, pt := range priceTypes {
		t.AllowedPriceTypes = append(t.AllowedPriceTypes, run.PriceType(pt))
	}
	return &t, nil
}

func (s *Store) GetPipeline(ctx context.Context, id int64) (*tool.Pipeline, error) {
	var (
		p       tool.Pipeline
		configs []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, configurations FROM pipelines WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &configs)
	if err != nil {
		return nil, dbErr(err, "get pipeline %d", id)
	}
	if err := json.Unmarshal(configs, &p.Configurations); err != nil {
		return nil, fmt.Errorf("unmarshal configurations of pipeline %d: %w", id, err)
	}
	return &p, nil
}

// SaveTool inserts or replaces a tool by image. Used by seeding and tests.
func (s *Store) SaveTool(ctx context.Context, t *tool.Tool) error {
	defaults, err := json.Marshal(t.Defaults)
	if err != nil {
		return fmt.Errorf("marshal tool defaults: %w", err)
	}
	versions, err := json.Marshal(t.Versions)
	if err != nil {
		return fmt.Errorf("marshal tool versions: %w", err)
	}
	priceTypes := make([]string, 0, len(t.AllowedPriceTypes))
	for _, pt := range t.AllowedPriceTypes {
		priceTypes = append(priceTypes, string(pt))
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO tools (image, defaults, allowed_instance_types, allowed_price_types, versions)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (image) DO UPDATE SET defaults = EXCLUDED.defaults,
			allowed_instance_types = EXCLUDED.allowed_instance_types,
			allowed_price_types = EXCLUDED.allowed_price_types, versions = EXCLUDED.versions
		 RETURNING id`,
		t.Image, defaults, pgTextArray(t.AllowedInstanceTypes), priceTypes, versions,
	).Scan(&t.ID)
}

// --- Offers ---

func (s *Store) ListOffers(ctx context.Context, regionID int64) ([]instance.Offer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT region_id, instance_type, price_type, price_per_hour
		 FROM instance_offers WHERE region_id = $1 ORDER BY instance_type, price_type`, regionID)
	if err != nil {
		return nil, fmt.Errorf("list offers of region %d: %w", regionID, err)
	}
	defer rows.Close()

	var offers []instance.Offer
	for rows.Next() {
		var (
			o  instance.Offer
			pt string
		)
		if err := rows.Scan(&o.RegionID, &o.InstanceType, &pt, &o.PricePerHour); err != nil {
			return nil, err
		}
		o.PriceType = run.PriceType(pt)
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (s *Store) GetDiskPrice(ctx context.Context, regionID int64) (*instance.DiskPrice, error) {
	d := instance.DiskPrice{RegionID: regionID}
	err := s.pool.QueryRow(ctx,
		`SELECT price_per_gb_hour FROM disk_prices WHERE region_id = $1`, regionID,
	).Scan(&d.PricePerGBHour)
	if err != nil {
		return nil, dbErr(err, "get disk price of region %d", regionID)
	}
	return &d, nil
}
