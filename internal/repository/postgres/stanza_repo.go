package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/msgstore/internal/errs"
	"github.com/and161185/msgstore/internal/jid"
	"github.com/and161185/msgstore/internal/model"
	"github.com/and161185/msgstore/internal/stanza"
)

// StanzaRepo implements StanzaRepository using PostgreSQL.
type StanzaRepo struct {
	db  *DB
	now func() time.Time
}

// NewStanzaRepo constructs an offline stanza repository.
func NewStanzaRepo(db *DB) *StanzaRepo { return &StanzaRepo{db: db, now: time.Now} }

// StanzaID returns the id a stanza is stored under: the id of an embedded
// receipt request (issued by the server), else the stanza id attribute. The
// attribute must itself be server generated.
func StanzaID(s *stanza.Element) string {
	if id, ok := stanza.Receipt(s, "request"); ok {
		return id
	}
	return s.GetAttr("id")
}

// Store inserts the stanza. A stanza without any id gets a fresh one, set on s.
// A duplicate id returns an error matching errs.ErrAlreadyExists.
func (r *StanzaRepo) Store(ctx context.Context, s *stanza.Element) (string, error) {
	sender, err := jid.UserID(s.GetAttr("from"))
	if err != nil {
		return "", fmt.Errorf("sender: %w", err)
	}
	recipient, err := jid.UserID(s.GetAttr("to"))
	if err != nil {
		return "", fmt.Errorf("recipient: %w", err)
	}
	id := StanzaID(s)
	if id == "" {
		u, err := uuid.NewV4()
		if err != nil {
			return "", err
		}
		id = u.String()
		s.SetAttr("id", id)
	}

	const q = `INSERT INTO stanzas (id, sender, recipient, content, timestamp) VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.Pool.Exec(ctx, q, id, sender, recipient, s.String(), r.now().UnixMilli())
	if isUniqueViolation(err) {
		return "", fmt.Errorf("stanza %s: %w: %w", id, errs.ErrAlreadyExists, err)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID returns content and timestamp of a stored stanza, or nil when absent.
func (r *StanzaRepo) GetByID(ctx context.Context, id string) (*model.StoredStanza, error) {
	const q = `SELECT content, timestamp FROM stanzas WHERE id = $1`
	var (
		content string
		ts      int64
	)
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&content, &ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &model.StoredStanza{ID: id, Content: content, Timestamp: time.UnixMilli(ts).UTC()}, nil
}

// GetByRecipient returns the stanzas for the recipient's user id, oldest first.
func (r *StanzaRepo) GetByRecipient(ctx context.Context, recipient string) ([]model.OfflineStanza, error) {
	userID, err := jid.UserID(recipient)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, sender, recipient, timestamp, content
FROM stanzas
WHERE recipient = $1
ORDER BY timestamp ASC, id ASC`
	return r.list(ctx, q, userID)
}

// GetBySender returns the stanzas sent by the sender's user id, oldest first.
func (r *StanzaRepo) GetBySender(ctx context.Context, sender string) ([]model.OfflineStanza, error) {
	userID, err := jid.UserID(sender)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, sender, recipient, timestamp, content
FROM stanzas
WHERE sender = $1
ORDER BY timestamp ASC, id ASC`
	return r.list(ctx, q, userID)
}

func (r *StanzaRepo) list(ctx context.Context, q, userID string) ([]model.OfflineStanza, error) {
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OfflineStanza
	for rows.Next() {
		var (
			st      model.OfflineStanza
			ts      int64
			content string
		)
		if err = rows.Scan(&st.ID, &st.Sender, &st.Recipient, &ts, &content); err != nil {
			return nil, err
		}
		st.Timestamp = time.UnixMilli(ts).UTC()
		if st.Stanza, err = stanza.Parse(content); err != nil {
			return nil, fmt.Errorf("stanza %s: %w", st.ID, err)
		}
		stanza.MarkStored(st.Stanza, st.ID)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Delete removes the stanza with id. Non-empty sender and recipient are
// matched as prefixes, see scopePattern. Deleting a missing id is not an error.
func (r *StanzaRepo) Delete(ctx context.Context, id, sender, recipient string) error {
	q := `DELETE FROM stanzas WHERE id = $1`
	args := []any{id}
	if sender != "" {
		args = append(args, scopePattern(sender))
		q += ` AND sender LIKE $` + strconv.Itoa(len(args)) + ` ESCAPE '\'`
	}
	if recipient != "" {
		args = append(args, scopePattern(recipient))
		q += ` AND recipient LIKE $` + strconv.Itoa(len(args)) + ` ESCAPE '\'`
	}
	_, err := r.db.Pool.Exec(ctx, q, args...)
	return err
}

// scopePattern turns a delete scope into a LIKE prefix. A full address is
// reduced to its user id. Anything else is a partial prefix: kept verbatim
// except for the domain part after '@', which is lower-cased like stored ids.
func scopePattern(scope string) string {
	if strings.Contains(scope, "@") {
		if id, err := jid.UserID(scope); err == nil {
			return prefixPattern(id)
		}
	}
	if i := strings.IndexByte(scope, '@'); i >= 0 {
		scope = scope[:i+1] + strings.ToLower(scope[i+1:])
	}
	return prefixPattern(scope)
}

// DeleteByStanza deletes the row a stanza refers to: the storage marker of a
// replayed stanza, a delivery receipt, or the id Store would have used.
func (r *StanzaRepo) DeleteByStanza(ctx context.Context, s *stanza.Element, sender, recipient string) error {
	id, ok := stanza.StoredID(s)
	if !ok {
		id, ok = stanza.Receipt(s, "received")
	}
	if !ok {
		id = StanzaID(s)
	}
	if id == "" {
		return nil
	}
	return r.Delete(ctx, id, sender, recipient)
}
