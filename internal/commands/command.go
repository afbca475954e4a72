package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeAdd    Type = "add"
	TypeDone   Type = "done"
	TypeSnooze Type = "snooze"
	TypeToggle Type = "toggle"
	TypeDelete Type = "delete"
	TypeSync   Type = "sync"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AddArgs holds the title plus the raw key:value options that followed it.
// Values are validated by the handler, which knows the clock and location.
type AddArgs struct {
	Title    string
	Due      string
	Offsets  []string
	Repeat   string
	Priority string
	Snooze   string
}

// TargetArgs names one task by id, id prefix or 1-based list position.
type TargetArgs struct {
	Target string
}

type SyncMode string

const (
	SyncBoth SyncMode = "both"
	SyncPull SyncMode = "pull"
	SyncPush SyncMode = "push"
)

type SyncArgs struct {
	Mode SyncMode
}

type Command struct {
	Type   Type
	Raw    string
	Add    *AddArgs
	Target *TargetArgs
	Sync   *SyncArgs
}

var aliases = map[string]Type{
	"new":      TypeAdd,
	"complete": TypeDone,
	"rm":       TypeDelete,
	"del":      TypeDelete,
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := Type(strings.ToLower(parts[0]))
	if alias, ok := aliases[string(head)]; ok {
		head = alias
	}
	args := parts[1:]

	switch head {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeDone, TypeSnooze, TypeToggle, TypeDelete:
		return parseTarget(input, head, args)
	case TypeSync:
		return parseSync(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

// parseAdd splits "add pay rent due:2026-06-01T09:00 pre:PT1H,PT15M" into
// the title words and the recognised options. Unknown key:value words stay
// in the title.
func parseAdd(raw string, args []string) (Command, error) {
	out := AddArgs{}
	title := make([]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, ":")
		if !ok || value == "" {
			title = append(title, arg)
			continue
		}
		switch strings.ToLower(key) {
		case "due", "at":
			out.Due = value
		case "pre":
			for _, o := range strings.Split(value, ",") {
				if o = strings.TrimSpace(o); o != "" {
					out.Offsets = append(out.Offsets, strings.ToUpper(o))
				}
			}
		case "repeat", "every":
			out.Repeat = strings.ToLower(value)
		case "priority", "p":
			out.Priority = strings.ToLower(value)
		case "snooze":
			out.Snooze = strings.ToUpper(value)
		default:
			title = append(title, arg)
		}
	}
	out.Title = strings.TrimSpace(strings.Join(title, " "))
	if out.Title == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires a title"}
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &out}, nil
}

func parseTarget(raw string, typ Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires exactly one task", typ)}
	}
	return Command{Type: typ, Raw: raw, Target: &TargetArgs{Target: args[0]}}, nil
}

func parseSync(raw string, args []string) (Command, error) {
	mode := SyncBoth
	if len(args) > 0 {
		mode = SyncMode(strings.ToLower(args[0]))
	}
	switch mode {
	case SyncBoth, SyncPull, SyncPush:
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown sync mode: %s", args[0])}
	}
	if len(args) > 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "sync takes at most one mode"}
	}
	return Command{Type: TypeSync, Raw: raw, Sync: &SyncArgs{Mode: mode}}, nil
}
