// Package common — helpers.go содержит форматирование для человекочитаемых
// сообщений: русская плюрализация, числа с разделителями, даты.
package common

import (
	"fmt"
	"time"
)

// Pluralize выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
//
// Пример:
//
//	Pluralize(21, "алмаз", "алмаза", "алмазов") → "алмаз"
func Pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeDays — «день», «дня», «дней».
func PluralizeDays(n int64) string {
	return Pluralize(n, "день", "дня", "дней")
}

// PluralizeDiamonds — «алмаз», «алмаза», «алмазов».
func PluralizeDiamonds(n int64) string {
	return Pluralize(n, "алмаз", "алмаза", "алмазов")
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// FormatDateTime — "02.01.2006 15:04" в часовом поясе loc (nil → UTC).
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// LoadLocation загружает часовой пояс, при ошибке — UTC+3.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}
