package execshell

// CommandEventObserver receives lifecycle notifications for git invocations.
type CommandEventObserver interface {
	CommandStarted(command ShellCommand)
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports failures that prevented an execution result.
	CommandExecutionFailed(command ShellCommand, failure error)
}

type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand) {}

func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}

// fanOutCommandEventObserver forwards every event to each registered observer in order.
type fanOutCommandEventObserver []CommandEventObserver

func newCommandEventObserver(observers []CommandEventObserver) CommandEventObserver {
	registered := make(fanOutCommandEventObserver, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			registered = append(registered, observer)
		}
	}
	switch len(registered) {
	case 0:
		return noopCommandEventObserver{}
	case 1:
		return registered[0]
	default:
		return registered
	}
}

func (observers fanOutCommandEventObserver) CommandStarted(command ShellCommand) {
	for _, observer := range observers {
		observer.CommandStarted(command)
	}
}

func (observers fanOutCommandEventObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	for _, observer := range observers {
		observer.CommandCompleted(command, result)
	}
}

func (observers fanOutCommandEventObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	for _, observer := range observers {
		observer.CommandExecutionFailed(command, failure)
	}
}
