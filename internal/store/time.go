package store

import "time"

// timeLayout is the on-disk timestamp format shared by both backends.
const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
