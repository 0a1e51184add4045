package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"licensedesk/internal/domain"
	"licensedesk/internal/infrastructure/crypto"
)

// LicenseStore - реализация domain.LicenseStore поверх database/sql.
// encryptor может быть nil (локальная установка без ключа шифрования),
// тогда телефон хранится как есть.
type LicenseStore struct {
	db        *DB
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

func NewLicenseStore(db *DB, encryptor *crypto.Encryptor, logger *slog.Logger) *LicenseStore {
	return &LicenseStore{
		db:        db,
		encryptor: encryptor,
		logger:    logger.With(slog.String("component", "license_store")),
	}
}

func (s *LicenseStore) Exists(ctx context.Context, key string) (bool, error) {
	query := s.db.Rebind(`SELECT 1 FROM licenses WHERE key = $1`)

	var one int
	err := s.db.QueryRowContext(ctx, query, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &domain.PersistenceError{Op: "exists", Err: err}
	}
	return true, nil
}

// InsertAll пишет весь батч в одной транзакции. Любая ошибка - полный откат,
// БД остается ровно в состоянии до вызова. UNIQUE(key) здесь финальный арбитр:
// гонку двух конкурентных выдач, поверивших в один и тот же кандидат,
// разруливает именно constraint, а не pre-check гарда.
func (s *LicenseStore) InsertAll(ctx context.Context, records []*domain.LicenseRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	query := s.db.Rebind(`
		INSERT INTO licenses (key, holder_name, holder_phone_enc, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`)

	for _, rec := range records {
		name, phone, err := s.holderColumns(rec.Holder)
		if err != nil {
			return &domain.PersistenceError{Op: "encrypt", Err: err}
		}

		err = tx.QueryRowContext(ctx, query, rec.Key, name, phone, rec.CreatedAt).Scan(&rec.ID)
		if err != nil {
			if isUniqueViolation(err) {
				s.logger.Warn("duplicate key lost the race at commit",
					slog.String("key", rec.Key))
			}
			return &domain.PersistenceError{Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

func (s *LicenseStore) ListAll(ctx context.Context) ([]domain.LicenseRecord, error) {
	query := `
		SELECT id, key, holder_name, holder_phone_enc, created_at
		FROM licenses
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []domain.LicenseRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scan", Err: err}
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	return out, nil
}

func (s *LicenseStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`).Scan(&n); err != nil {
		return 0, &domain.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *LicenseStore) scanRecord(rows *sql.Rows) (*domain.LicenseRecord, error) {
	rec := &domain.LicenseRecord{}
	var name, phoneEnc sql.NullString

	if err := rows.Scan(&rec.ID, &rec.Key, &name, &phoneEnc, &rec.CreatedAt); err != nil {
		return nil, err
	}

	if name.Valid {
		phone := phoneEnc.String
		if s.encryptor != nil && phoneEnc.Valid {
			decrypted, err := s.encryptor.Decrypt(phoneEnc.String)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt holder phone for key %s: %w", rec.Key, err)
			}
			phone = decrypted
		}
		rec.Holder = &domain.Holder{Name: name.String, Phone: phone}
	}
	return rec, nil
}

func (s *LicenseStore) holderColumns(h *domain.Holder) (name, phone sql.NullString, err error) {
	if h == nil {
		return sql.NullString{}, sql.NullString{}, nil
	}
	stored := h.Phone
	if s.encryptor != nil {
		stored, err = s.encryptor.Encrypt(h.Phone)
		if err != nil {
			return sql.NullString{}, sql.NullString{}, err
		}
	}
	return sql.NullString{String: h.Name, Valid: true},
		sql.NullString{String: stored, Valid: true}, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// modernc.org/sqlite не экспортирует типизированный код констрейнта
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
