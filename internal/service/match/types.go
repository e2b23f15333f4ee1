package match

import "time"

type QueueStatus string

const (
	QueueStatusIdle    QueueStatus = "idle"
	QueueStatusQueued  QueueStatus = "queued"
	QueueStatusMatched QueueStatus = "matched"
)

type StatusResult struct {
	Status   QueueStatus `json:"status"`
	TableID  *int64      `json:"tableId,omitempty"`
	JoinedAt *time.Time  `json:"joinedAt,omitempty"`
}

type queueMember struct {
	UserID   int64     `json:"userId"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
}

type matchNotifyPayload struct {
	TableID int64 `json:"tableId"`
}
