package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
	portfoliodomain "github.com/smallbiznis/realvest/internal/portfolio/domain"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	watchlistdomain "github.com/smallbiznis/realvest/internal/watchlist/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&propertydomain.Property{},
		&propertydomain.InvestmentMetrics{},
		&propertydomain.Valuation{},
		&propertydomain.ProfitPrediction{},
		&watchlistdomain.WatchlistItem{},
		&portfoliodomain.OwnedProperty{},
		&ledgerdomain.Transaction{},
		&portfoliodomain.PortfolioMetrics{},
		&pipelinedomain.DealStage{},
		&pipelinedomain.Deal{},
		&auditdomain.AuditLog{},
	}
}

// Run brings the schema up to date. Postgres uses the versioned SQL files;
// sqlite and mysql are migrated from the models.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
