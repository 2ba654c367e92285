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
	auditdomain "github.com/smallbiznis/schoolfee/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	invoicedomain "github.com/smallbiznis/schoolfee/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/schoolfee/internal/payment/domain"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	schooldomain "github.com/smallbiznis/schoolfee/internal/school/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema. The directory, fee
// catalog, preference, invoice, payment and audit tables are all created
// on startup.
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

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schoolfee_schema_migrations"})
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
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns, in dependency order.
func Models() []any {
	var models []any
	models = append(models, schooldomain.Models()...)
	models = append(models, catalogdomain.Models()...)
	models = append(models, prefdomain.Models()...)
	models = append(models, invoicedomain.Models()...)
	models = append(models, paymentdomain.Models()...)
	models = append(models, &auditdomain.AuditLog{})
	return models
}

// AutoMigrate builds the schema from the gorm models. It backs the mysql
// and sqlite dialects, which the SQL files do not target.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
