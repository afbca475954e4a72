package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

type StateRepository interface {
	LoadState(ctx context.Context, key string) (StateRecord, error)
	SaveState(ctx context.Context, in StateRecord) error
}

type AlarmRepository interface {
	PutAlarm(ctx context.Context, in AlarmRecord) error
	DeleteAlarm(ctx context.Context, handle string) error
	DeleteAllAlarms(ctx context.Context) error
	ListAlarms(ctx context.Context, filter AlarmListFilter) ([]AlarmRecord, error)
}

type Repository interface {
	StateRepository
	AlarmRepository
}
