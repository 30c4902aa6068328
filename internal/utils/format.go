package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Number formats large numbers with commas for readability.
// For example: 1234567 becomes "1,234,567"
func Number(n int64) string {
	str := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(str, "-") {
		sign, str = "-", str[1:]
	}
	if len(str) <= 3 {
		return sign + str
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}

// Bytes formats a byte count using binary units.
// Examples: 512 -> "512 B", 2048 -> "2.0 KiB", 5<<20 -> "5.0 MiB"
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Ratio formats stored/original as a percentage, "-" when original is zero.
func Ratio(stored, original int64) string {
	if original == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(stored)/float64(original)*100)
}

// Duration formats time duration in human-readable form.
// Examples:
//   - Less than 1 second: "350ms"
//   - Less than 1 minute: "5.2s"
//   - Less than 1 hour: "3m5.2s"
//   - 1 hour or more: "2h15m"
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := d.Seconds() - float64(minutes*60)
		return fmt.Sprintf("%dm%.1fs", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
