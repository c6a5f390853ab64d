package local

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL token store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const tokenColumns = `
	id, fingerprint, brand, last4, exp_month, exp_year, holder_name,
	created_at, expires_at, active,
	envelope_version, iv, ciphertext, auth_tag, key_id
`

// Insert stores a new token record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO card_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Token.ID,
		rec.Token.Fingerprint,
		string(rec.Token.Brand),
		rec.Token.Last4,
		rec.Token.ExpMonth,
		rec.Token.ExpYear,
		rec.Token.HolderName,
		rec.Token.CreatedAt,
		rec.Token.ExpiresAt,
		rec.Token.Active,
		rec.Envelope.Version,
		rec.Envelope.IV,
		rec.Envelope.Ciphertext,
		rec.Envelope.AuthTag,
		rec.Envelope.KeyID,
	)
	return err
}

// Get returns the record for a token id, or (nil, nil) when absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + tokenColumns + ` FROM card_tokens WHERE id = $1`
	return s.scanRecord(ctx, query, id)
}

// FindActiveByFingerprint returns the newest active record with the given
// fingerprint, or (nil, nil) when none exists.
func (s *PostgresStore) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Record, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM card_tokens
		WHERE fingerprint = $1 AND active = true
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanRecord(ctx, query, fingerprint)
}

// Deactivate flips the record's active flag off; unknown ids are a no-op.
func (s *PostgresStore) Deactivate(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE card_tokens SET active = false WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) scanRecord(ctx context.Context, query string, args ...interface{}) (*Record, error) {
	var rec Record
	var brand string

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&rec.Token.ID,
		&rec.Token.Fingerprint,
		&brand,
		&rec.Token.Last4,
		&rec.Token.ExpMonth,
		&rec.Token.ExpYear,
		&rec.Token.HolderName,
		&rec.Token.CreatedAt,
		&rec.Token.ExpiresAt,
		&rec.Token.Active,
		&rec.Envelope.Version,
		&rec.Envelope.IV,
		&rec.Envelope.Ciphertext,
		&rec.Envelope.AuthTag,
		&rec.Envelope.KeyID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec.Token.Brand = brandFromString(brand)
	return &rec, nil
}
