package database

import (
	"fmt"
	"strings"
	"time"

	"permledger/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Seed is the state written into an empty database.
type Seed struct {
	Capacity uint64
	Fee      uint64
	Balances map[string]uint64
}

// Open connects to the database named by driver ("mysql" or "sqlite") and
// routes gorm's own logging through zap.
func Open(driver, dsn string, zl *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	level := logger.Warn
	if zl.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}
	gormLogger := logger.New(
		zap.NewStdLog(zl.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer; one connection keeps transactions
		// from tripping over "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenMemory opens a private in-memory sqlite database. name isolates
// databases from each other within one process.
func OpenMemory(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	return Open("sqlite", dsn, zap.NewNop())
}

// Migrate creates or updates every table the ledger uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.LedgerSettings{},
		&models.Permission{},
		&models.PermissionIndex{},
		&models.PermissionUpdate{},
		&models.RoleAssignment{},
		&models.Account{},
		&models.AuditEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// InitDB opens, migrates and seeds the database.
func InitDB(driver, dsn string, seed Seed, zl *zap.Logger) (*gorm.DB, error) {
	db, err := Open(driver, dsn, zl)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := SeedInitialData(db, seed, zl); err != nil {
		return nil, err
	}
	zl.Info("Database connection successful and migrations complete", zap.String("driver", driver))
	return db, nil
}

// SeedInitialData writes the settings row and genesis balances if they do
// not exist yet. Existing rows are left alone.
func SeedInitialData(db *gorm.DB, seed Seed, zl *zap.Logger) error {
	if seed.Capacity == 0 {
		return fmt.Errorf("seed capacity must be greater than zero")
	}

	settings := models.LedgerSettings{
		ID:       models.SettingsRowID,
		Capacity: seed.Capacity,
		Fee:      seed.Fee,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings)
	if res.Error != nil {
		return fmt.Errorf("failed to seed ledger settings: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		zl.Info("Seeded ledger settings", zap.Uint64("capacity", seed.Capacity), zap.Uint64("fee", seed.Fee))
	}

	for principal, balance := range seed.Balances {
		account := models.Account{Principal: models.Principal(principal), Balance: balance}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&account)
		if res.Error != nil {
			return fmt.Errorf("failed to seed balance for %s: %w", principal, res.Error)
		}
		if res.RowsAffected > 0 {
			zl.Info("Seeded genesis balance", zap.String("principal", principal), zap.Uint64("balance", balance))
		}
	}
	return nil
}
