package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/scheduler"
)

// DesktopNotifier shows a fired alert outside the terminal.
type DesktopNotifier interface {
	Send(title, body string) error
}

type NoopDesktopNotifier struct{}

func (NoopDesktopNotifier) Send(string, string) error { return nil }

// ExecDesktopNotifier shells out to notify-send on Linux and osascript on
// macOS. Other platforms are a no-op.
type ExecDesktopNotifier struct{}

func (ExecDesktopNotifier) Send(title, body string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("notify-send", "--category="+Category, title, body).Run()
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(body), escapeAppleScript(title))
		return exec.Command("osascript", "-e", script).Run()
	default:
		return nil
	}
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Deliver forwards fired alarms to the desktop notifier and to onFire until
// ctx is done or alarms is closed.
func Deliver(ctx context.Context, alarms <-chan scheduler.Alarm, notifier DesktopNotifier, logger zerolog.Logger, onFire func(scheduler.Alarm)) {
	if notifier == nil {
		notifier = NoopDesktopNotifier{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-alarms:
			if !ok {
				return
			}
			logger.Info().Str("task_id", a.Alert.TaskID).Str("kind", string(a.Alert.Kind)).Msg("alert fired")
			if err := notifier.Send(a.Alert.Title, a.Alert.Body); err != nil {
				logger.Warn().Err(err).Msg("desktop notification failed")
			}
			if onFire != nil {
				onFire(a)
			}
		}
	}
}
