package utils

import (
	"time"
)

// UnixTimeToTime converts the Unix timestamps carried on area template
// events into UTC times for the catalog mirror.
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0).UTC()
}
