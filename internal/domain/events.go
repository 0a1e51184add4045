package domain

import "time"

// DomainEvent - маркерный интерфейс
type DomainEvent interface {
	GetTime() time.Time
}

// LicenseIssued - событие успешного коммита выдачи (одиночной или пакетной).
// Публикуется строго после записи в БД, чтобы подписчики не видели ключей,
// которых там нет.
type LicenseIssued struct {
	Keys     []string
	Count    int
	IssuedAt time.Time
}

func (e LicenseIssued) GetTime() time.Time { return e.IssuedAt }
