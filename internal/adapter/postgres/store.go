package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/port/database"
	"github.com/Strob0t/CloudLaunch/internal/secrets"
)

var _ database.Store = (*Store)(nil)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	cipher *secrets.Cipher
}

// NewStore creates a new Store backed by the given connection pool. Region
// credentials are sealed with cipher before they are written.
func NewStore(pool *pgxpool.Pool, cipher *secrets.Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

// sealCredentials encodes and encrypts creds for the cloud_credentials table.
func (s *Store) sealCredentials(creds *region.Credentials) ([]byte, error) {
	plain := *creds
	plain.RegionID = 0
	data, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	if s.cipher == nil {
		return data, nil
	}
	return s.cipher.Encrypt(data)
}

// openCredentials reverses sealCredentials.
func (s *Store) openCredentials(regionID int64, payload []byte) (*region.Credentials, error) {
	data := payload
	if s.cipher != nil {
		var err error
		if data, err = s.cipher.Decrypt(payload); err != nil {
			return nil, fmt.Errorf("decrypt credentials of region %d: %w", regionID, err)
		}
	}
	var creds region.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials of region %d: %w", regionID, err)
	}
	creds.RegionID = regionID
	return &creds, nil
}
