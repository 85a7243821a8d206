package report

import "strings"

// sparkline block characters from lowest to highest
var sparkBlocks = []rune{
	'\u2581', // ▁
	'\u2582', // ▂
	'\u2583', // ▃
	'\u2584', // ▄
	'\u2585', // ▅
	'\u2586', // ▆
	'\u2587', // ▇
	'\u2588', // █
}

// sparkline scales values between zero and their maximum.
func sparkline(values []uint64) string {
	if len(values) == 0 {
		return ""
	}

	var max uint64
	for _, v := range values {
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	for _, v := range values {
		idx := 0
		if max > 0 {
			idx = int(float64(v) / float64(max) * float64(len(sparkBlocks)-1))
		}
		if idx >= len(sparkBlocks) {
			idx = len(sparkBlocks) - 1
		}
		b.WriteRune(sparkBlocks[idx])
	}

	return b.String()
}
