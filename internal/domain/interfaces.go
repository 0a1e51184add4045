package domain

import "context"

// LicenseStore - хранилище выданных лицензий
type LicenseStore interface {
	// Быстрая проверка занятости ключа (pre-check гарда)
	Exists(ctx context.Context, key string) (bool, error)

	// Атомарная вставка: либо весь батч durable, либо ничего.
	// UNIQUE(key) на стороне БД - финальный арбитр против гонок между
	// конкурентными резервированиями. Назначенные ID пишутся обратно в records.
	InsertAll(ctx context.Context, records []*LicenseRecord) error

	// Все записи, отсортированные по created_at по убыванию
	ListAll(ctx context.Context) ([]LicenseRecord, error)

	// Количество записей (для отчетов оператору)
	Count(ctx context.Context) (int64, error)
}

// EventPublisher - доставка событий подписчикам (live-фид для UI).
// Публикация не должна блокировать выдачу.
type EventPublisher interface {
	PublishLicenseIssued(event LicenseIssued)
}
