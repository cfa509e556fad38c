package persistence

import (
	"context"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"gorm.io/gorm"
)

// GormUnitOfWork implements itsm.UnitOfWork with a GORM transaction
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do runs fn inside one transaction and commits only when fn returns nil
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(repos itsm.TxRepositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(itsm.TxRepositories{
			Queue:   NewGormSyncQueueRepository(tx),
			Audit:   NewGormAuditLogRepository(tx),
			Events:  NewGormSyncEventRepository(tx),
			Tickets: NewGormTicketStateRepository(tx),
		})
	})
}

var _ itsm.UnitOfWork = (*GormUnitOfWork)(nil)
