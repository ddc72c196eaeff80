package db

import (
	"errors"
	"fmt"

	"custodia/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Migrate() error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	return s.DB.AutoMigrate(
		&MediaModel{},
		&CustodyEventModel{},
		&CustodySeqModel{},
		&AnchorAttemptModel{},
	)
}
