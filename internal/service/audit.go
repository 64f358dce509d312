// audit.go — журнал операций с пользователями.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/itm-space/backend-resources/internal/domain/model"
	"github.com/itm-space/backend-resources/internal/repository"
)

// auditWriteTimeout — ограничение на запись одной строки журнала.
const auditWriteTimeout = 3 * time.Second

// AuditService пишет записи журнала аудита.
// Без репозитория (БД не настроена) Record ничего не делает.
// Ошибки записи только логируются и не влияют на результат операции.
type AuditService struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewAuditService создаёт сервис аудита. repo может быть nil.
func NewAuditService(repo repository.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger.With(slog.String("component", "audit")),
	}
}

// Enabled сообщает, ведётся ли журнал.
func (s *AuditService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Record записывает результат операции.
// Запись не прерывается отменой запроса клиента.
func (s *AuditService) Record(ctx context.Context, entry *model.AuditEntry) {
	if !s.Enabled() {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.repo.Insert(writeCtx, entry); err != nil {
		s.logger.Warn("Не удалось записать событие аудита",
			slog.String("action", entry.Action),
			slog.String("target", entry.Target),
			slog.String("error", err.Error()),
		)
	}
}
