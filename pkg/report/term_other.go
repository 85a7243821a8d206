//go:build !linux && !darwin

package report

import "io"

func terminalWidth(io.Writer) (int, bool) {
	return 0, false
}
