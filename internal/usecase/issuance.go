package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"licensedesk/internal/domain"
	"licensedesk/internal/license"
)

// IssuanceService - публичный контракт ядра выдачи. Все фронтенды
// (бот, HTTP, CLI) ходят только сюда.
type IssuanceService struct {
	store  domain.LicenseStore
	guard  *license.Guard
	events domain.EventPublisher // необязателен (nil = без live-фида)
	logger *slog.Logger
}

func NewIssuanceService(
	store domain.LicenseStore,
	guard *license.Guard,
	events domain.EventPublisher,
	logger *slog.Logger,
) *IssuanceService {
	return &IssuanceService{
		store:  store,
		guard:  guard,
		events: events,
		logger: logger.With(slog.String("component", "issuance")),
	}
}

// IssueOne выдает одну лицензию, опционально с данными владельца.
// Валидация формы идет строго до генерации: плохой телефон не должен
// стоить нам ни одного обращения к энтропии или БД.
func (s *IssuanceService) IssueOne(ctx context.Context, holder *domain.Holder) (*domain.LicenseRecord, error) {
	if holder != nil {
		if err := holder.Validate(); err != nil {
			return nil, err
		}
	}

	key, err := s.guard.Reserve(ctx, s.store.Exists)
	if err != nil {
		return nil, err
	}

	rec := domain.NewLicenseRecord(key, holder)
	if err := s.store.InsertAll(ctx, []*domain.LicenseRecord{rec}); err != nil {
		return nil, err
	}

	s.logger.Info("license issued",
		slog.Int64("id", rec.ID),
		slog.String("key", rec.Key))

	s.publish([]string{rec.Key})
	return rec, nil
}

// IssueBatch выдает n лицензий одним атомарным коммитом.
// Резервирование идет по одной, но exists-проверка видит и БД, и ключи,
// уже занятые ранее в этом же батче: два вызова гарда внутри одного батча
// не имеют права выбрать одинаковых кандидатов. Если лимит попыток
// исчерпался на середине - полный abort, зарезервированное просто
// выбрасывается, в БД не попадает ничего.
func (s *IssuanceService) IssueBatch(ctx context.Context, n int) ([]*domain.LicenseRecord, error) {
	if n < 1 {
		return nil, &domain.ValidationError{Field: "count", Reason: "must be at least 1"}
	}

	reserved := make(map[string]struct{}, n)
	exists := func(ctx context.Context, key string) (bool, error) {
		if _, ok := reserved[key]; ok {
			return true, nil
		}
		return s.store.Exists(ctx, key)
	}

	records := make([]*domain.LicenseRecord, 0, n)
	for i := 0; i < n; i++ {
		key, err := s.guard.Reserve(ctx, exists)
		if err != nil {
			return nil, fmt.Errorf("batch aborted at key %d of %d: %w", i+1, n, err)
		}
		reserved[key] = struct{}{}
		records = append(records, domain.NewLicenseRecord(key, nil))
	}

	// Один InsertAll на весь запрос - это и есть граница атомарности
	if err := s.store.InsertAll(ctx, records); err != nil {
		return nil, err
	}

	s.logger.Info("batch issued", slog.Int("count", n))

	keys := make([]string, 0, n)
	for _, rec := range records {
		keys = append(keys, rec.Key)
	}
	s.publish(keys)
	return records, nil
}

// ListAll возвращает консистентный снимок всех лицензий, новые сверху.
func (s *IssuanceService) ListAll(ctx context.Context) ([]domain.LicenseRecord, error) {
	return s.store.ListAll(ctx)
}

// Count возвращает общее число выданных лицензий.
func (s *IssuanceService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Exists сообщает, была ли лицензия с таким ключом когда-либо выдана.
func (s *IssuanceService) Exists(ctx context.Context, key string) (bool, error) {
	return s.store.Exists(ctx, key)
}

func (s *IssuanceService) publish(keys []string) {
	if s.events == nil {
		return
	}
	s.events.PublishLicenseIssued(domain.LicenseIssued{
		Keys:     keys,
		Count:    len(keys),
		IssuedAt: time.Now().UTC(),
	})
}
