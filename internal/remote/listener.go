package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/sandeepkv93/cronos/internal/syncer"
)

// Subscribe listens on Channel and forwards events for userID's rows. After
// a dropped connection is re-established the handler receives one event
// with an empty TaskID, since notifications sent in between were lost.
func (s *PostgresStore) Subscribe(ctx context.Context, userID string, handler func(syncer.ChangeEvent)) (func(), error) {
	if s.dsn == "" {
		return nil, ErrNoDSN
	}
	listener := pq.NewListener(s.dsn, s.minReconnect, s.maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			s.log.Warn().Err(err).Msg("change feed connection lost")
		case pq.ListenerEventReconnected:
			s.log.Info().Msg("change feed reconnected")
		}
	})
	if err := listener.Listen(Channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}
	s.log.Debug().Str("channel", Channel).Msg("subscribed to change feed")

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		keepalive := time.NewTicker(90 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				if err := listener.Ping(); err != nil {
					s.log.Debug().Err(err).Msg("change feed ping failed")
				}
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					handler(syncer.ChangeEvent{Type: syncer.EventUpdate, UserID: userID})
					continue
				}
				ev, match, err := decodeNotification(n.Extra, userID)
				if err != nil {
					s.log.Warn().Err(err).Msg("ignoring malformed change notification")
					continue
				}
				if match {
					handler(ev)
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if err := listener.Close(); err != nil {
				s.log.Debug().Err(err).Msg("close change feed listener")
			}
		})
	}
	return stop, nil
}

// decodeNotification parses a trigger payload and reports whether it
// belongs to userID.
func decodeNotification(payload, userID string) (syncer.ChangeEvent, bool, error) {
	var ev syncer.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return syncer.ChangeEvent{}, false, fmt.Errorf("decode change notification: %w", err)
	}
	if ev.TaskID == "" {
		return syncer.ChangeEvent{}, false, fmt.Errorf("decode change notification: missing id")
	}
	return ev, ev.UserID == userID, nil
}
