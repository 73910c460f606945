// Package units has decimal byte size constants.
package units

import "fmt"

const (
	Kilobyte = 1000
	Kb       = Kilobyte
	Megabyte = Kilobyte * Kilobyte
	Mb       = Megabyte
	Gigabyte = Megabyte * Kilobyte
	Gb       = Gigabyte
)

// Format prints n bytes in the largest unit it reaches.
func Format(n int64) string {
	switch {
	case n >= Gb:
		return fmt.Sprintf("%.1f GB", float64(n)/Gb)
	case n >= Mb:
		return fmt.Sprintf("%.1f MB", float64(n)/Mb)
	case n >= Kb:
		return fmt.Sprintf("%.1f kB", float64(n)/Kb)
	}
	return fmt.Sprintf("%d B", n)
}
