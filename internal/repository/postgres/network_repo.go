package postgres

import "context"

// NetworkRepo implements NetworkRepository using PostgreSQL.
type NetworkRepo struct{ db *DB }

// NewNetworkRepo constructs a federation directory repository.
func NewNetworkRepo(db *DB) *NetworkRepo { return &NetworkRepo{db: db} }

// GetList loads the whole fingerprint -> host directory in one query.
func (r *NetworkRepo) GetList(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT fingerprint, host FROM servers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var fp, host string
		if err = rows.Scan(&fp, &host); err != nil {
			return nil, err
		}
		out[fp] = host
	}
	return out, rows.Err()
}
