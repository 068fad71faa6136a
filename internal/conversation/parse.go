package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/services"
)

const (
	MaxChannelLength = 100
	MinDurationMin   = 60
	MaxDurationMin   = 24 * 60
)

// Ввод отклонён; шаг повторяется, черновик не меняется
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Непустое имя канала не длиннее 100 символов
func ValidateChannel(s string) (string, *ValidationError) {
	channel := strings.TrimSpace(s)
	if channel == "" {
		return "", invalid("channel", "Название канала не может быть пустым.")
	}
	if utf8.RuneCountInString(channel) > MaxChannelLength {
		return "", invalid("channel", fmt.Sprintf("Название канала не должно быть длиннее %d символов.", MaxChannelLength))
	}
	return channel, nil
}

// Время начала стрима
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay принимает ЧЧ:ММ (также Ч:ММ и ЧЧ.ММ)
func ParseTimeOfDay(s string) (TimeOfDay, *ValidationError) {
	bad := invalid("time", "Неверный формат времени. Используйте ЧЧ:ММ, например 18:30.")
	value := strings.ReplaceAll(strings.TrimSpace(s), ".", ":")
	h, m, ok := strings.Cut(value, ":")
	if !ok || len(m) != 2 || h == "" || len(h) > 2 {
		return TimeOfDay{}, bad
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, bad
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return TimeOfDay{}, bad
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, invalid("time", "Часы должны быть от 0 до 23, минуты от 0 до 59.")
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseDuration возвращает длительность в минутах: «2» — два часа, «1:30» — полтора, «1.5» — тоже.
func ParseDuration(s string) (int, *ValidationError) {
	bad := invalid("duration", "Введите количество часов, например 2 или 1:30.")
	value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "ч"))
	var minutes int
	if h, m, ok := strings.Cut(value, ":"); ok {
		hours, err1 := strconv.Atoi(h)
		mins, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || hours < 0 || hours > MaxDurationMin/60 || mins < 0 || mins > 59 || len(m) != 2 {
			return 0, bad
		}
		minutes = hours*60 + mins
	} else {
		hours, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
		if err != nil {
			return 0, bad
		}
		if hours.GreaterThan(decimal.NewFromInt(MaxDurationMin / 60)) {
			return 0, durationRange()
		}
		total := hours.Mul(decimal.NewFromInt(60))
		if !total.IsInteger() {
			return 0, invalid("duration", "Длительность должна быть кратна минуте.")
		}
		minutes = int(total.IntPart())
	}
	if minutes < MinDurationMin || minutes > MaxDurationMin {
		return 0, durationRange()
	}
	return minutes, nil
}

func durationRange() *ValidationError {
	return invalid("duration", fmt.Sprintf("Длительность должна быть от %d до %d часов.",
		MinDurationMin/60, MaxDurationMin/60))
}

// 90 -> «1 ч 30 мин»
func FormatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case m == 0:
		return fmt.Sprintf("%d ч", h)
	case h == 0:
		return fmt.Sprintf("%d мин", m)
	default:
		return fmt.Sprintf("%d ч %d мин", h, m)
	}
}

// Стоимость заказа: ставка за час × длительность, округление до копеек
func Amount(ratePerHour decimal.Decimal, minutes int) decimal.Decimal {
	return ratePerHour.Mul(decimal.NewFromInt(int64(minutes))).DivRound(decimal.NewFromInt(60), 2)
}

// Сумма пополнения в рублях, не меньше min и с точностью до копейки
func ParseTopUpAmount(s string, min decimal.Decimal) (decimal.Decimal, *ValidationError) {
	value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "₽"))
	amount, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
	if err != nil {
		return decimal.Zero, invalid("amount", "Введите сумму числом, например 500.")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, invalid("amount", "Сумма указывается с точностью до копейки.")
	}
	if amount.LessThan(min) {
		return decimal.Zero, invalid("amount", fmt.Sprintf("Минимальная сумма пополнения: %s ₽", min.StringFixed(0)))
	}
	if amount.GreaterThan(decimal.NewFromInt(services.MaxTopUpRub)) {
		return decimal.Zero, invalid("amount", fmt.Sprintf("Максимальная сумма пополнения: %d ₽", services.MaxTopUpRub))
	}
	return amount, nil
}
