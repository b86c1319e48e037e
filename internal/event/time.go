package event

import "time"

const timeLayout = time.RFC3339Nano

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, raw)
}
