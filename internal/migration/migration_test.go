package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/realvest/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAutoMigratesNonPostgres(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Run(conn))

	for _, table := range []string{"properties", "investment_metrics", "owned_properties", "ledger_transactions", "portfolio_metrics", "deal_stages", "deals", "watchlist_items", "audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("deals", "idx_deals_owner_stage_position"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Positive(t, ups)
	assert.Equal(t, ups, downs)
}
