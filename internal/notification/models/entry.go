package models

import "time"

// Entry is the single pending notification challenge.
type Entry struct {
	Challenge      string `json:"challenge"`
	TimeoutEpochMs int64  `json:"timeoutEpochMs"`
	NotificationID int32  `json:"notificationId"`
}

// ExpiredAt reports whether the entry is past its timeout at now.
// An entry is still valid at exactly its timeout.
func (e Entry) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() > e.TimeoutEpochMs
}
