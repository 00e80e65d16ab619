package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/msgstore/internal/errs"
	"github.com/and161185/msgstore/internal/stanza"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func mustParse(t *testing.T, s string) *stanza.Element {
	t.Helper()
	e, err := stanza.Parse(s)
	require.NoError(t, err)
	return e
}

const insertStanza = `INSERT INTO stanzas \(id, sender, recipient, content, timestamp\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`

func TestStanzaRepo_Store_UsesStanzaID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)
	fixed := time.UnixMilli(1700000000123)
	r.now = func() time.Time { return fixed }

	s := mustParse(t, `<message from="alice@x/phone" to="bob@x/pc" id="m1"><body>hi</body></message>`)
	mock.ExpectExec(insertStanza).
		WithArgs("m1", "alice@x", "bob@x", s.String(), int64(1700000000123)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := r.Store(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, "m1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStanzaRepo_Store_PrefersReceiptID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	s := mustParse(t, `<message from="alice@x/phone" to="bob@x" id="client-id"><request xmlns="urn:xmpp:receipts" id="srv-42"/></message>`)
	mock.ExpectExec(insertStanza).
		WithArgs("srv-42", "alice@x", "bob@x", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := r.Store(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, "srv-42", id)
}

func TestStanzaRepo_Store_AssignsMissingID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	s := mustParse(t, `<message from="alice@x" to="bob@x"><body>hi</body></message>`)
	mock.ExpectExec(insertStanza).
		WithArgs(pgxmock.AnyArg(), "alice@x", "bob@x", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := r.Store(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, id, 36)
	require.Equal(t, id, s.GetAttr("id"))
}

func TestStanzaRepo_Store_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	pgErr := &pgconn.PgError{Code: "23505"}
	mock.ExpectExec(insertStanza).
		WithArgs("m1", "alice@x", "bob@x", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgErr)

	_, err := r.Store(context.Background(), mustParse(t, `<message from="alice@x" to="bob@x" id="m1"/>`))
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	var got *pgconn.PgError
	require.ErrorAs(t, err, &got)
}

func TestStanzaRepo_Store_ConnectionError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	boom := errors.New("conn lost")
	mock.ExpectExec(insertStanza).
		WithArgs("m1", "alice@x", "bob@x", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	_, err := r.Store(context.Background(), mustParse(t, `<message from="alice@x" to="bob@x" id="m1"/>`))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestStanzaRepo_Store_BadAddress(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	_, err := r.Store(context.Background(), mustParse(t, `<message to="bob@x" id="m1"/>`))
	require.ErrorIs(t, err, errs.ErrInvalidAddress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStanzaRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT content, timestamp FROM stanzas WHERE id = \$1`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows([]string{"content", "timestamp"}).
			AddRow(`<message id="m1"/>`, int64(1000)))
	got, err := r.GetByID(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, `<message id="m1"/>`, got.Content)
	require.Equal(t, time.UnixMilli(1000).UTC(), got.Timestamp)

	mock.ExpectQuery(`SELECT content, timestamp FROM stanzas WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	got, err = r.GetByID(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStanzaRepo_GetByRecipient_OrderedAndMarked(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	mock.ExpectQuery(`SELECT id, sender, recipient, timestamp, content FROM stanzas WHERE recipient = \$1 ORDER BY timestamp ASC, id ASC`).
		WithArgs("bob@x").
		WillReturnRows(pgxmock.NewRows([]string{"id", "sender", "recipient", "timestamp", "content"}).
			AddRow("a", "alice@x", "bob@x", int64(10), `<message id="a"><body>1</body></message>`).
			AddRow("b", "carol@x", "bob@x", int64(20), `<message id="b"><body>2</body></message>`))

	out, err := r.GetByRecipient(context.Background(), "bob@x/pc")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out[1].Timestamp.Before(out[0].Timestamp))
	for _, st := range out {
		id, ok := stanza.StoredID(st.Stanza)
		require.True(t, ok)
		require.Equal(t, st.ID, id)
	}
	require.Equal(t, "carol@x", out[1].Sender)
}

func TestStanzaRepo_GetByRecipient_CorruptContent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	mock.ExpectQuery(`SELECT id, sender, recipient, timestamp, content FROM stanzas WHERE recipient = \$1`).
		WithArgs("bob@x").
		WillReturnRows(pgxmock.NewRows([]string{"id", "sender", "recipient", "timestamp", "content"}).
			AddRow("a", "alice@x", "bob@x", int64(10), `<message`))

	_, err := r.GetByRecipient(context.Background(), "bob@x")
	require.Error(t, err)
}

func TestStanzaRepo_GetBySender(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	mock.ExpectQuery(`SELECT id, sender, recipient, timestamp, content FROM stanzas WHERE sender = \$1 ORDER BY timestamp ASC, id ASC`).
		WithArgs("alice@x").
		WillReturnRows(pgxmock.NewRows([]string{"id", "sender", "recipient", "timestamp", "content"}).
			AddRow("a", "alice@x", "bob@x", int64(10), `<message id="a"/>`))

	out, err := r.GetBySender(context.Background(), "alice@x/phone")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "bob@x", out[0].Recipient)
}

func TestStanzaRepo_Delete_Unscoped(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1$`).
		WithArgs("m1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, r.Delete(context.Background(), "m1", "", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStanzaRepo_Delete_Scoped(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1 AND sender LIKE \$2 .* AND recipient LIKE \$3`).
		WithArgs("m1", "alice@x%", `bob\_1@x%`).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, r.Delete(context.Background(), "m1", "alice@x/phone", "bob_1@x"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStanzaRepo_Delete_RecipientOnly(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)

	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1 AND recipient LIKE \$2`).
		WithArgs("m1", "bob@x%").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, r.Delete(context.Background(), "m1", "", "bob@x"))
}

func TestStanzaRepo_Delete_PartialScopes(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1 AND sender LIKE \$2`).
		WithArgs("m1", "Alice%").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, "m1", "Alice", ""))

	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1 AND recipient LIKE \$2`).
		WithArgs("m1", "@x%").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, r.Delete(ctx, "m1", "", "@X"))

	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1 AND sender LIKE \$2`).
		WithArgs("m1", "Bob@example.org%").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, "m1", "Bob@Example.ORG/desk", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStanzaRepo_DeleteByStanza(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewStanzaRepo(db)
	ctx := context.Background()

	replayed := mustParse(t, `<message id="m1"/>`)
	stanza.MarkStored(replayed, "stored-1")
	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1$`).
		WithArgs("stored-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.DeleteByStanza(ctx, replayed, "", ""))

	ack := mustParse(t, `<message id="x"><received xmlns="urn:xmpp:receipts" id="srv-9"/></message>`)
	mock.ExpectExec(`DELETE FROM stanzas WHERE id = \$1 AND recipient LIKE \$2`).
		WithArgs("srv-9", "bob@x%").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.DeleteByStanza(ctx, ack, "", "bob@x"))

	require.NoError(t, r.DeleteByStanza(ctx, mustParse(t, `<message/>`), "", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}
