package conversation

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateChannel(t *testing.T) {
	got, verr := ValidateChannel("  my_stream  ")
	assert.Nil(t, verr)
	assert.Equal(t, "my_stream", got)

	_, verr = ValidateChannel("   ")
	assert.NotNil(t, verr)

	_, verr = ValidateChannel(strings.Repeat("я", 100))
	assert.Nil(t, verr)

	_, verr = ValidateChannel(strings.Repeat("я", 101))
	assert.NotNil(t, verr)
}

func TestParseTimeOfDay(t *testing.T) {
	valid := map[string]TimeOfDay{
		"18:30": {18, 30},
		"9:05":  {9, 5},
		"00:00": {0, 0},
		"23.59": {23, 59},
	}
	for in, want := range valid {
		got, verr := ParseTimeOfDay(in)
		assert.Nil(t, verr, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"24:00", "12:60", "1230", "12:5", "ab:cd", "", "-1:00", "123:00"} {
		_, verr := ParseTimeOfDay(in)
		assert.NotNil(t, verr, in)
	}
}

func TestParseDuration(t *testing.T) {
	valid := map[string]int{
		"2":    120,
		"1:30": 90,
		"1.5":  90,
		"1,5":  90,
		"24":   1440,
		"3ч":   180,
	}
	for in, want := range valid {
		got, verr := ParseDuration(in)
		assert.Nil(t, verr, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"0", "-2", "0:30", "25", "1:75", "abc", "1.0001", "",
		"307445734561825862", "25:00", "9223372036854775807:00", "99999999999999999999"} {
		_, verr := ParseDuration(in)
		assert.NotNil(t, verr, in)
	}
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "200.00", Amount(decimal.NewFromInt(100), 120).StringFixed(2))
	assert.Equal(t, "225.00", Amount(decimal.NewFromInt(150), 90).StringFixed(2))
	// 80 ₽/час × 61 мин = 81.333...
	assert.Equal(t, "81.33", Amount(decimal.NewFromInt(80), 61).StringFixed(2))
	// 50 ₽/час × 65 мин = 54.1666...
	assert.Equal(t, "54.17", Amount(decimal.NewFromInt(50), 65).StringFixed(2))
}

func TestParseTopUpAmount(t *testing.T) {
	min := decimal.NewFromInt(100)
	got, verr := ParseTopUpAmount("1000", min)
	assert.Nil(t, verr)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)))

	got, verr = ParseTopUpAmount("150,50 ₽", min)
	assert.Nil(t, verr)
	assert.Equal(t, "150.50", got.StringFixed(2))

	got, verr = ParseTopUpAmount("1000000", min)
	assert.Nil(t, verr)
	assert.True(t, got.Equal(decimal.NewFromInt(1000000)))

	for _, in := range []string{"50", "abc", "100.001", "", "1000000.01", "1e20"} {
		_, verr := ParseTopUpAmount(in, min)
		assert.NotNil(t, verr, in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "2 ч", FormatDuration(120))
	assert.Equal(t, "1 ч 30 мин", FormatDuration(90))
}
