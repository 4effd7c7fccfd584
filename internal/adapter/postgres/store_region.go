package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
)

const regionColumns = `id, provider, region_code, name, is_default, owner, created_date, shift_enabled,
	cors_rules, policy, mount_storage_rule, mount_file_storage_rule, mount_credentials_rule,
	storage_lifecycle_service_host, settings`

// regionSettings is the JSONB shape of the provider blocks.
type regionSettings struct {
	AWS   *region.AWSSettings   `json:"aws,omitempty"`
	Azure *region.AzureSettings `json:"azure,omitempty"`
	GCP   *region.GCPSettings   `json:"gcp,omitempty"`
}

func scanRegion(row scannable) (region.Region, error) {
	var (
		r        region.Region
		provider string
		settings []byte
	)
	err := row.Scan(&r.ID, &provider, &r.RegionCode, &r.Name, &r.Default, &r.Owner, &r.CreatedDate,
		&r.RunShiftPolicy.ShiftEnabled, &r.CORSRules, &r.Policy, &r.MountStorageRule,
		&r.MountFileStorageRule, &r.MountCredentialsRule, &r.StorageLifecycleServiceHost, &settings)
	if err != nil {
		return r, err
	}
	r.Provider = region.Provider(provider)
	var st regionSettings
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &st); err != nil {
			return r, fmt.Errorf("unmarshal settings of region %d: %w", r.ID, err)
		}
	}
	r.AWS, r.Azure, r.GCP = st.AWS, st.Azure, st.GCP
	return r, nil
}

func (s *Store) queryRegion(ctx context.Context, where string, args ...any) (*region.Region, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+regionColumns+` FROM cloud_regions WHERE `+where, args...)
	r, err := scanRegion(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRegions(ctx context.Context) ([]region.Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+regionColumns+` FROM cloud_regions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cloud regions: %w", err)
	}
	defer rows.Close()

	var regions []region.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (s *Store) GetRegion(ctx context.Context, id int64) (*region.Region, error) {
	r, err := s.queryRegion(ctx, `id = $1`, id)
	if err != nil {
		return nil, dbErr(err, "get cloud region %d", id)
	}
	return r, nil
}

func (s *Store) GetRegionByName(ctx context.Context, name string) (*region.Region, error) {
	r, err := s.queryRegion(ctx, `name = $1`, name)
	if err != nil {
		return nil, dbErr(err, "get cloud region %q", name)
	}
	return r, nil
}

func (s *Store) GetRegionByProviderAndCode(ctx context.Context, provider region.Provider, code string) (*region.Region, error) {
	r, err := s.queryRegion(ctx, `provider = $1 AND region_code = $2`, string(provider), code)
	if err != nil {
		return nil, dbErr(err, "get cloud region %s/%s", provider, code)
	}
	return r, nil
}

func (s *Store) GetDefaultRegion(ctx context.Context) (*region.Region, error) {
	r, err := s.queryRegion(ctx, `is_default`)
	if err != nil {
		return nil, dbErr(err, "get default cloud region")
	}
	return r, nil
}

// SaveRegion writes the region, demotes any other default and replaces the
// credentials in one transaction.
func (s *Store) SaveRegion(ctx context.Context, r *region.Region, creds *region.Credentials) (*region.Region, error) {
	settings, err := json.Marshal(regionSettings{AWS: r.AWS, Azure: r.Azure, GCP: r.GCP})
	if err != nil {
		return nil, fmt.Errorf("marshal region settings: %w", err)
	}
	var sealed []byte
	if creds != nil {
		if sealed, err = s.sealCredentials(creds); err != nil {
			return nil, err
		}
	}

	var saved region.Region
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if r.Default {
			if _, err := tx.Exec(ctx,
				`UPDATE cloud_regions SET is_default = FALSE WHERE is_default AND id <> $1`, r.ID); err != nil {
				return fmt.Errorf("demote default cloud region: %w", err)
			}
		}

		var row pgx.Row
		if r.ID == 0 {
			row = tx.QueryRow(ctx,
				`INSERT INTO cloud_regions (provider, region_code, name, is_default, owner, created_date,
					shift_enabled, cors_rules, policy, mount_storage_rule, mount_file_storage_rule,
					mount_credentials_rule, storage_lifecycle_service_host, settings)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				 RETURNING `+regionColumns,
				string(r.Provider), r.RegionCode, r.Name, r.Default, r.Owner, r.CreatedDate,
				r.RunShiftPolicy.ShiftEnabled, r.CORSRules, r.Policy, r.MountStorageRule,
				r.MountFileStorageRule, r.MountCredentialsRule, r.StorageLifecycleServiceHost, settings)
		} else {
			row = tx.QueryRow(ctx,
				`UPDATE cloud_regions SET name = $2, is_default = $3, shift_enabled = $4, cors_rules = $5,
					policy = $6, mount_storage_rule = $7, mount_file_storage_rule = $8,
					mount_credentials_rule = $9, storage_lifecycle_service_host = $10, settings = $11
				 WHERE id = $1
				 RETURNING `+regionColumns,
				r.ID, r.Name, r.Default, r.RunShiftPolicy.ShiftEnabled, r.CORSRules, r.Policy,
				r.MountStorageRule, r.MountFileStorageRule, r.MountCredentialsRule,
				r.StorageLifecycleServiceHost, settings)
		}
		var err error
		if saved, err = scanRegion(row); err != nil {
			return dbErr(err, "save cloud region %q", r.Name)
		}

		if sealed != nil {
			if _, err := tx.Exec(ctx,
				`INSERT INTO cloud_credentials (region_id, provider, payload) VALUES ($1, $2, $3)
				 ON CONFLICT (region_id) DO UPDATE SET provider = EXCLUDED.provider, payload = EXCLUDED.payload`,
				saved.ID, string(saved.Provider), sealed); err != nil {
				return fmt.Errorf("save credentials of region %d: %w", saved.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) DeleteRegion(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cloud_credentials WHERE region_id = $1`, id); err != nil {
			return fmt.Errorf("delete credentials of region %d: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM cloud_regions WHERE id = $1`, id)
		return expectOne(tag, err, "delete cloud region %d", id)
	})
}

func (s *Store) GetCredentials(ctx context.Context, regionID int64) (*region.Credentials, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM cloud_credentials WHERE region_id = $1`, regionID).Scan(&payload)
	if err != nil {
		return nil, dbErr(err, "get credentials of region %d", regionID)
	}
	return s.openCredentials(regionID, payload)
}

func (s *Store) ListFileShareMounts(ctx context.Context, regionID int64) ([]region.FileShareMount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, region_id, mount_root, mount_type, mount_options
		 FROM file_share_mounts WHERE region_id = $1 ORDER BY id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("list file share mounts of region %d: %w", regionID, err)
	}
	defer rows.Close()

	var mounts []region.FileShareMount
	for rows.Next() {
		var m region.FileShareMount
		if err := rows.Scan(&m.ID, &m.RegionID, &m.MountRoot, &m.MountType, &m.MountOptions); err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, rows.Err()
}
