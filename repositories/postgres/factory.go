package postgres

import (
	"database/sql"

	"github.com/upb/venture-hub/config"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the pool and applies migrations when enabled
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.RunMigrations {
		if err := RunMigrations(cfg.Database.MigrationURL(), logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositoryFactoryFromDB wraps an existing connection
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:        NewUserRepository(f.db, f.logger),
		AuthAccounts: NewAuthAccountRepository(f.db, f.logger),
		OTPSessions:  NewOTPSessionRepository(f.db, f.logger),
		Memberships:  NewMembershipRepository(f.db, f.logger),
		Activity:     NewActivityRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a read committed transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger, WithIsolation(sql.LevelReadCommitted))
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
