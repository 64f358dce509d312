package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/itm-space/backend-resources/internal/domain/model"
)

// AuditRepository — запись в журнал user_audit.
type AuditRepository interface {
	// Insert добавляет запись. Пустой ID заполняется новым UUID,
	// CreatedAt заполняется временем БД.
	Insert(ctx context.Context, entry *model.AuditEntry) error
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Insert(ctx context.Context, entry *model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO user_audit (id, action, actor, target, status, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.Action, entry.Actor, entry.Target, entry.Status, entry.Message,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}
