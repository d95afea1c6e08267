package db

import (
	"fmt"
	"log"

	"ledgerd/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB

	Receipts         *ReceiptRepository
	Anchors          *AnchorRepository
	Proofs           *ProofRepository
	PublishQueue     *PublishQueueRepository
	PublishAttempts  *PublishAttemptRepository
	Policies         *PolicyRepository
	Revocations      *RevocationRepository
	RevocationEpochs *RevocationEpochRepository
	AuditEvents      *AuditEventRepository
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("POSTGRES_DSN not set; starting in no-db mode.")
		return newStoreWithDB(nil), nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return newStoreWithDB(gdb), nil
}

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&ReceiptModel{},
		&AnchorModel{},
		&AnchorMemberModel{},
		&ProofModel{},
		&PublishTaskModel{},
		&PublishAttemptModel{},
		&PolicyModel{},
		&RevocationModel{},
		&RevocationEpochModel{},
		&TenantAuditSeqModel{},
		&AuditEventModel{},
	)
}

// Ping reports whether the underlying connection is usable. A no-db store
// always reports healthy.
func (s *Store) Ping() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func newStoreWithDB(gdb *gorm.DB) *Store {
	return &Store{
		DB:               gdb,
		Receipts:         NewReceiptRepository(gdb),
		Anchors:          NewAnchorRepository(gdb),
		Proofs:           NewProofRepository(gdb),
		PublishQueue:     NewPublishQueueRepository(gdb),
		PublishAttempts:  NewPublishAttemptRepository(gdb),
		Policies:         NewPolicyRepository(gdb),
		Revocations:      NewRevocationRepository(gdb),
		RevocationEpochs: NewRevocationEpochRepository(gdb),
		AuditEvents:      NewAuditEventRepository(gdb),
	}
}
