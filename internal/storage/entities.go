package storage

import "time"

// StateRecord is one versioned serialized blob, e.g. the task store snapshot.
type StateRecord struct {
	Key       string
	Version   int
	Payload   []byte
	UpdatedAt time.Time
}

// AlarmRecord is the durable copy of an outstanding alarm.
type AlarmRecord struct {
	Handle      string
	TaskID      string
	Kind        string
	Offset      string
	Title       string
	Body        string
	ScheduledAt time.Time
	FireAt      time.Time
	CreatedAt   time.Time
}

type AlarmListFilter struct {
	TaskID string
	Limit  int
	Offset int
}
