package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbup-tool/dbup/internal/plan"
	"github.com/dbup-tool/dbup/internal/testutil"
)

func TestJournalAcrossProviders(t *testing.T) {
	for _, p := range testutil.Providers() {
		t.Run(string(p), func(t *testing.T) {
			tdb := testutil.SetupTestDB(t, p)
			tdb.CleanupTables(t, "dbup_it_journal", "dbup_it_journal"+RunAlwaysSuffix)

			ctx := context.Background()
			loc := plan.JournalLocation{Table: "dbup_it_journal", RecordRunAlways: true}
			j, err := New(tdb.Conn, p, tdb.Gateway.Dialect(), loc, nil)
			require.NoError(t, err)

			exists, err := j.StoreExists(ctx)
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, j.EnsureStoreExists(ctx))
			require.NoError(t, j.EnsureStoreExists(ctx), "creating the store twice is a no-op")

			exists, err = j.StoreExists(ctx)
			require.NoError(t, err)
			assert.True(t, exists)

			applied, err := j.HasBeenApplied(ctx, "001_init.sql")
			require.NoError(t, err)
			assert.False(t, applied)

			at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			entry := Entry{Identity: "001_init.sql", AppliedAt: at, Hash: Hash("CREATE TABLE x (id INT);")}
			require.NoError(t, j.RecordApplied(ctx, entry))
			require.NoError(t, j.RecordApplied(ctx, entry), "recording twice keeps one row")
			require.NoError(t, j.RecordRunAlways(ctx, Entry{Identity: "refresh.sql", AppliedAt: at}))

			applied, err = j.HasBeenApplied(ctx, "001_init.sql")
			require.NoError(t, err)
			assert.True(t, applied)

			entries, err := j.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "001_init.sql", entries[0].Identity)
			assert.Equal(t, entry.Hash, entries[0].Hash)
			assert.WithinDuration(t, at, entries[0].AppliedAt, time.Second)
		})
	}
}
