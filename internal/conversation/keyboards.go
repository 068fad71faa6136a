package conversation

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/pricing"
)

// Быстрый выбор длительности, минуты
var quickDurations = []int{60, 120, 180, 240, 360, 480}

// Быстрый выбор суммы пополнения, рубли
var quickAmounts = []int64{500, 1000, 2000}

// isQuickAmount принимает только суммы с кнопок, которые бот сам показывает
func isQuickAmount(a decimal.Decimal) bool {
	for _, q := range quickAmounts {
		if a.Equal(decimal.NewFromInt(q)) {
			return true
		}
	}
	return false
}

func cmdButton(text string, cmd Command) Button {
	return Button{Text: text, Command: cmd}
}

func navRow(back Step) []Button {
	return []Button{cmdButton("⬅️ Назад", Back{To: back}), cmdButton("❌ Отмена", Cancel{})}
}

func cancelRow() []Button {
	return []Button{cmdButton("❌ Отмена", Cancel{})}
}

func platformKeyboard() [][]Button {
	var row []Button
	for _, p := range pricing.Platforms {
		row = append(row, cmdButton(p.Title(), SelectPlatform{Platform: p}))
	}
	return [][]Button{row, cancelRow()}
}

func serviceKeyboard(catalog *pricing.Catalog, p pricing.Platform) [][]Button {
	var rows [][]Button
	for _, s := range catalog.ServicesFor(p) {
		price, _ := catalog.Price(p, s)
		label := fmt.Sprintf("%s — %s ₽/час", s.Title(), price.StringFixed(0))
		rows = append(rows, []Button{cmdButton(label, SelectService{Service: s})})
	}
	return append(rows, navRow(StepChoosePlatform))
}

// calendarKeyboard рисует месяц m; листать назад дальше текущего месяца нельзя
func calendarKeyboard(m Month, today Date) [][]Button {
	rows := [][]Button{{cmdButton(m.Title(), Noop{})}}

	header := make([]Button, 0, len(weekdayNames))
	for _, name := range weekdayNames {
		header = append(header, cmdButton(name, Noop{}))
	}
	rows = append(rows, header)

	for _, week := range m.Grid(today) {
		row := make([]Button, 0, len(week))
		for _, cell := range week {
			switch {
			case cell.Empty():
				row = append(row, cmdButton(" ", Noop{}))
			case !cell.Selectable:
				row = append(row, cmdButton("·", Noop{}))
			default:
				row = append(row, cmdButton(strconv.Itoa(cell.Date.Day), PickDay{Date: cell.Date}))
			}
		}
		rows = append(rows, row)
	}

	var nav []Button
	if today.MonthOf().Before(m) {
		nav = append(nav, cmdButton("«", ShowMonth{Month: m.Prev()}))
	}
	nav = append(nav, cmdButton("»", ShowMonth{Month: m.Next()}))
	rows = append(rows, nav)
	return append(rows, navRow(StepEnterChannel))
}

func durationKeyboard() [][]Button {
	var rows [][]Button
	var row []Button
	for _, minutes := range quickDurations {
		row = append(row, cmdButton(FormatDuration(minutes), QuickDuration{Minutes: minutes}))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, navRow(StepPickTime))
}

func reviewKeyboard() [][]Button {
	return [][]Button{
		{cmdButton("✅ Подтвердить", Confirm{})},
		navRow(StepPickDuration),
	}
}

func insufficientKeyboard() [][]Button {
	return [][]Button{
		{cmdButton("💰 Пополнить баланс", TopUpForOrder{})},
		{cmdButton("✅ Подтвердить", Confirm{})},
		cancelRow(),
	}
}

func amountKeyboard(resume bool) [][]Button {
	var row []Button
	for _, a := range quickAmounts {
		amount := decimal.NewFromInt(a)
		row = append(row, cmdButton(amount.String()+" ₽", QuickAmount{Amount: amount}))
	}
	if resume {
		return [][]Button{row, navRow(StepReview)}
	}
	return [][]Button{row, cancelRow()}
}

func topUpConfirmKeyboard() [][]Button {
	return [][]Button{
		{cmdButton("💳 Оплатить", PayCrypto{})},
		navRow(StepTopUpAmount),
	}
}

func invoiceKeyboard(payURL, invoiceID string, resume bool) [][]Button {
	rows := [][]Button{
		{{Text: "💳 Оплатить в CryptoBot", URL: payURL}},
		{cmdButton("🔄 Проверить оплату", CheckPayment{InvoiceID: invoiceID})},
	}
	if resume {
		rows = append(rows, []Button{cmdButton("✅ Подтвердить заказ", Confirm{})}, cancelRow())
	}
	return rows
}
