package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add    func(AddArgs) (Result, error)
	Done   func(TargetArgs) (Result, error)
	Snooze func(TargetArgs) (Result, error)
	Toggle func(TargetArgs) (Result, error)
	Delete func(TargetArgs) (Result, error)
	Sync   func(SyncArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeDone, TypeSnooze, TypeToggle, TypeDelete:
		h := map[Type]func(TargetArgs) (Result, error){
			TypeDone:   handlers.Done,
			TypeSnooze: handlers.Snooze,
			TypeToggle: handlers.Toggle,
			TypeDelete: handlers.Delete,
		}[cmd.Type]
		if h == nil {
			return Result{}, missing(cmd.Type)
		}
		return h(*cmd.Target)
	case TypeSync:
		if handlers.Sync == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Sync(*cmd.Sync)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
