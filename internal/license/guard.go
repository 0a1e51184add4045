package license

import (
	"context"
	"fmt"

	"licensedesk/internal/domain"
)

const DefaultMaxAttempts = 10

// GenerateFunc - источник кандидатов (обычно Generator.Generate)
type GenerateFunc func() (string, error)

// ExistsFunc - проверка занятости кандидата. Для пакетной выдачи сюда
// передается композиция "БД + уже зарезервированные в этом батче ключи".
type ExistsFunc func(ctx context.Context, key string) (bool, error)

// Guard резервирует свободный ключ ограниченным циклом generate/check.
// Цикл именно ограниченный, без рекурсии: на патологически маленьком алфавите
// или почти исчерпанном пространстве ключей "крутить пока не повезет" нельзя.
type Guard struct {
	generate    GenerateFunc
	maxAttempts int
}

func NewGuard(generate GenerateFunc, maxAttempts int) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Guard{generate: generate, maxAttempts: maxAttempts}
}

// Reserve возвращает кандидата, свободного по мнению exists.
// Финальный арбитр все равно UNIQUE в БД: между check и commit другая выдача
// могла занять тот же ключ, тогда коммит упадет с PersistenceError.
func (g *Guard) Reserve(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		key, err := g.generate()
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("uniqueness check failed: %w", err)
		}
		if !taken {
			return key, nil
		}
		// Коллизия - пробуем следующего кандидата
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrCollisionExhausted, g.maxAttempts)
}
