package postgres

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/msgstore/internal/jid"
	"github.com/and161185/msgstore/internal/model"
	"github.com/and161185/msgstore/internal/stanza"
)

// PresenceRepo implements PresenceRepository using PostgreSQL.
// Rows are keyed by resource-qualified identity; status is stored base64 encoded.
type PresenceRepo struct{ db *DB }

// NewPresenceRepo constructs a presence repository.
func NewPresenceRepo(db *DB) *PresenceRepo { return &PresenceRepo{db: db} }

const selectPresence = `SELECT userid, timestamp, status, show, priority FROM presence`

// Get returns at most one record for userid+resource. With an empty resource it
// returns every resource of userid, most recently updated first.
func (r *PresenceRepo) Get(ctx context.Context, userid, resource string) ([]model.Presence, error) {
	if id, err := jid.UserID(userid); err == nil {
		userid = id
	}
	if resource != "" {
		p, err := scanPresence(r.db.Pool.QueryRow(ctx, selectPresence+` WHERE userid = $1`, jid.Qualify(userid, resource)))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []model.Presence{p}, nil
	}

	const where = ` WHERE userid = $1 OR userid LIKE $2 ESCAPE '\' ORDER BY timestamp DESC`
	rows, err := r.db.Pool.Query(ctx, selectPresence+where, userid, prefixPattern(userid+"/"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Presence
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPresence(row pgx.Row) (model.Presence, error) {
	var (
		p      model.Presence
		status *string
		show   *string
	)
	if err := row.Scan(&p.UserID, &p.Timestamp, &status, &show, &p.Priority); err != nil {
		return model.Presence{}, err
	}
	if status != nil {
		raw, err := base64.StdEncoding.DecodeString(*status)
		if err != nil {
			return model.Presence{}, fmt.Errorf("presence %s: status: %w", p.UserID, err)
		}
		p.Status = string(raw)
	}
	if show != nil {
		p.Show = *show
	}
	return p, nil
}

// Presence upserts the presence of the stanza sender. The timestamp is taken
// from the database clock and never moves backwards.
func (r *PresenceRepo) Presence(ctx context.Context, s *stanza.Element) error {
	sender, err := jid.Parse(s.GetAttr("from"))
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}

	var status, show *string
	if text, _ := s.ChildText("status"); text != "" {
		enc := base64.StdEncoding.EncodeToString([]byte(text))
		status = &enc
	}
	if text, _ := s.ChildText("show"); text != "" {
		show = &text
	}
	priority := 0
	if text, ok := s.ChildText("priority"); ok {
		if v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 8); err == nil {
			priority = int(v)
		}
	}

	const q = `
INSERT INTO presence (userid, timestamp, status, show, priority)
VALUES ($1, now(), $2, $3, $4)
ON CONFLICT (userid) DO UPDATE
SET timestamp = GREATEST(EXCLUDED.timestamp, presence.timestamp),
    status = EXCLUDED.status,
    show = EXCLUDED.show,
    priority = EXCLUDED.priority`
	_, err = r.db.Pool.Exec(ctx, q, sender.Full(), status, show, priority)
	return err
}

// Touch sets the timestamp of addr to now. A bare address touches every
// resource of the user.
func (r *PresenceRepo) Touch(ctx context.Context, addr string) error {
	j, err := jid.Parse(addr)
	if err != nil {
		return err
	}
	if j.Resource != "" {
		const q = `UPDATE presence SET timestamp = GREATEST(now(), timestamp) WHERE userid = $1`
		_, err = r.db.Pool.Exec(ctx, q, j.Full())
		return err
	}
	const q = `UPDATE presence SET timestamp = GREATEST(now(), timestamp) WHERE userid = $1 OR userid LIKE $2 ESCAPE '\'`
	_, err = r.db.Pool.Exec(ctx, q, j.Bare(), prefixPattern(j.Bare()+"/"))
	return err
}
