package license

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Формат ключа: 4 группы по 5 символов через дефис, например AB12C-3DE45-FG678-HI9J0.
// Алфавит без строчных букв, чтобы ключ переживал ручной ввод и печать.
const (
	Alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	Groups    = 4
	GroupLen  = 5
	Separator = "-"
)

var keyPattern = regexp.MustCompile(
	fmt.Sprintf(`^[A-Z0-9]{%d}(%s[A-Z0-9]{%d}){%d}$`, GroupLen, Separator, GroupLen, Groups-1))

// IsWellFormed сообщает, соответствует ли строка формату ключа.
func IsWellFormed(key string) bool {
	return keyPattern.MatchString(key)
}

// Generator выдает кандидатов в ключи из криптостойкого источника.
// Ключ работает как credential, поэтому math/rand здесь запрещен:
// кандидат не должен быть угадываемым или воспроизводимым по seed.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate возвращает один кандидат фиксированного формата.
// Не сверяется ни с каким состоянием - уникальность решает гард и БД.
func (g *Generator) Generate() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	groups := make([]string, 0, Groups)

	var b strings.Builder
	for i := 0; i < Groups; i++ {
		b.Reset()
		for j := 0; j < GroupLen; j++ {
			r, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("entropy source failed: %w", err)
			}
			b.WriteByte(Alphabet[r.Int64()])
		}
		groups = append(groups, b.String())
	}
	return strings.Join(groups, Separator), nil
}
