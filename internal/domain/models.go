package domain

import (
	"strings"
	"time"
	"unicode"
)

// --- Entities (Сущности БД) ---

// Holder - владелец лицензии. Заполняется из формы оператора,
// может отсутствовать (анонимная выдача).
type Holder struct {
	Name  string
	Phone string
}

// LicenseRecord - выданная лицензия. Append-only: запись создается один раз
// при коммите и больше никогда не меняется. Отзыв лицензии (если понадобится)
// моделируется новой записью, а не мутацией.
type LicenseRecord struct {
	ID        int64 // Назначается хранилищем при вставке
	Key       string
	Holder    *Holder
	CreatedAt time.Time
}

// NewLicenseRecord создает запись с явно выставленными полями.
// Никаких скрытых дефолтов на стороне БД: CreatedAt фиксируется здесь.
func NewLicenseRecord(key string, holder *Holder) *LicenseRecord {
	return &LicenseRecord{
		Key:       key,
		Holder:    holder,
		CreatedAt: time.Now().UTC(),
	}
}

const (
	PhoneMinDigits = 7
	PhoneMaxDigits = 15
)

// Validate проверяет структурную форму данных владельца.
// UI-валидация (сообщения, подсветка полей) остается на вызывающей стороне,
// здесь только защитная проверка перед генерацией ключа.
func (h *Holder) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	n := len(PhoneDigits(h.Phone))
	if n < PhoneMinDigits || n > PhoneMaxDigits {
		return &ValidationError{Field: "phone", Reason: "must contain 7 to 15 digits"}
	}
	return nil
}

// PhoneDigits выкидывает из номера все, кроме цифр (пробелы, +, дефисы).
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
