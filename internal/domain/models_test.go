package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneDigits(t *testing.T) {
	assert.Equal(t, "442079460321", PhoneDigits("+44 (20) 7946-0321"))
	assert.Equal(t, "", PhoneDigits("call me"))
}

func TestHolderValidate(t *testing.T) {
	ok := Holder{Name: "Ada", Phone: "+44 20 7946 0321"}
	assert.NoError(t, ok.Validate())

	// Граничные длины: 7 и 15 цифр проходят, 6 и 16 - нет
	assert.NoError(t, (&Holder{Name: "A", Phone: "1234567"}).Validate())
	assert.NoError(t, (&Holder{Name: "A", Phone: "123456789012345"}).Validate())
	assert.Error(t, (&Holder{Name: "A", Phone: "123456"}).Validate())
	assert.Error(t, (&Holder{Name: "A", Phone: "1234567890123456"}).Validate())

	var vErr *ValidationError
	err := (&Holder{Name: "   ", Phone: "1234567"}).Validate()
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)
}

func TestNewLicenseRecordSetsAllFields(t *testing.T) {
	rec := NewLicenseRecord("AB12C-3DE45-FG678-HI9J0", nil)
	assert.Equal(t, "AB12C-3DE45-FG678-HI9J0", rec.Key)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, "UTC", rec.CreatedAt.Location().String())
	assert.Zero(t, rec.ID, "ID назначает хранилище, не конструктор")
}
