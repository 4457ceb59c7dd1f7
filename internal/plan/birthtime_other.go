//go:build !linux && !darwin

package plan

import "time"

func birthTime(string) (time.Time, bool) {
	return time.Time{}, false
}
