package engine

import (
	"time"
	"unicode/utf8"
)

// Clock devuelve la hora actual. Los engines la reciben inyectada para que los
// tests controlen expiraciones de freezes y antigüedad de quotes.
type Clock func() time.Time

// SystemClock es el Clock de producción (UTC).
func SystemClock() time.Time {
	return time.Now().UTC()
}

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

// Optional returns nil for unknown (non-positive) prices so they encode as null.
func Optional(v float64) any {
	if v <= 0 {
		return nil
	}
	return v
}
