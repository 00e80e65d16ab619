package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/msgstore/internal/blob"
	"github.com/and161185/msgstore/internal/errs"
	"github.com/and161185/msgstore/internal/migrate"
	"github.com/and161185/msgstore/internal/repository/postgres"
	"github.com/and161185/msgstore/internal/stanza"
)

// openLive connects to the database named by STORE_TEST_DSN, applying the schema.
func openLive(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("STORE_TEST_DSN")
	if dsn == "" {
		t.Skip("STORE_TEST_DSN not set")
	}
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	_, err := migrate.Up(ctx, dsn, log)
	require.NoError(t, err)
	db, err := postgres.Open(ctx, postgres.PoolConfig{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)

	s := New(db, blob.NewDisk(t.TempDir(), log), Options{CodeLength: 6}, log)
	t.Cleanup(s.Close)
	return s
}

func unique(t *testing.T) string {
	t.Helper()
	return uuid.Must(uuid.NewV4()).String()[:8]
}

func TestLive_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()

	key := "alice-" + unique(t)
	code, err := s.Validations.Register(ctx, key, "")
	require.NoError(t, err)

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    []string
		invalid int
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Validations.Validate(ctx, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, got)
			case errors.Is(err, errs.ErrInvalidCode):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, []string{key}, wins)
	require.Equal(t, racers-1, invalid)
}

func TestLive_OfflineStanzas(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()
	bob := "bob-" + unique(t) + "@x"

	var ids []string
	for i := range 3 {
		msg, err := stanza.Parse(fmt.Sprintf(`<message from="alice@x/phone" to="%s/pc"><body>%d</body></message>`, bob, i))
		require.NoError(t, err)
		id, err := s.Stanzas.Store(ctx, msg)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	out, err := s.Stanzas.GetByRecipient(ctx, bob)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		require.False(t, out[i].Timestamp.Before(out[i-1].Timestamp))
	}

	require.NoError(t, s.Stanzas.Delete(ctx, ids[0], "", "someone-else@x"))
	got, err := s.Stanzas.GetByID(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, s.Stanzas.Delete(ctx, ids[0], "alice@x/tablet", bob))
	require.NoError(t, s.Stanzas.Delete(ctx, ids[1], "", ""))
	require.NoError(t, s.Stanzas.Delete(ctx, ids[1], "", ""))
	for _, id := range ids[:2] {
		got, err = s.Stanzas.GetByID(ctx, id)
		require.NoError(t, err)
		require.Nil(t, got)
	}
	require.NoError(t, s.Stanzas.Delete(ctx, ids[2], "", ""))
}

func TestLive_Presence(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()
	user := "carol-" + unique(t) + "@x"

	send := func(res, body string) {
		t.Helper()
		p, err := stanza.Parse(fmt.Sprintf(`<presence from="%s/%s">%s</presence>`, user, res, body))
		require.NoError(t, err)
		require.NoError(t, s.Presence.Presence(ctx, p))
	}

	send("a", `<status>first</status><priority>1</priority>`)
	first, err := s.Presence.Get(ctx, user, "a")
	require.NoError(t, err)
	require.Len(t, first, 1)

	send("a", `<status>second</status><show>away</show><priority>2</priority>`)
	second, err := s.Presence.Get(ctx, user, "a")
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "second", second[0].Status)
	require.Equal(t, "away", second[0].Show)
	require.Equal(t, 2, second[0].Priority)
	require.False(t, second[0].Timestamp.Before(first[0].Timestamp))

	require.NoError(t, s.Presence.Touch(ctx, user+"/a"))
	touched, err := s.Presence.Get(ctx, user, "a")
	require.NoError(t, err)
	require.Equal(t, second[0].Status, touched[0].Status)
	require.Equal(t, second[0].Show, touched[0].Show)
	require.Equal(t, second[0].Priority, touched[0].Priority)
	require.False(t, touched[0].Timestamp.Before(second[0].Timestamp))

	send("b", ``)
	send("c", ``)
	all, err := s.Presence.Get(ctx, user, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].Timestamp.After(all[i-1].Timestamp))
	}
}
