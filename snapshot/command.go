package snapshot

// CommandKind identifies a bar-to-window-manager request.
type CommandKind uint32

const (
	CommandNone CommandKind = iota
	CommandViewTag
	CommandToggleTag
	CommandSetLayout
)

// String returns the kind name for logs.
func (k CommandKind) String() string {
	switch k {
	case CommandViewTag:
		return "view-tag"
	case CommandToggleTag:
		return "toggle-tag"
	case CommandSetLayout:
		return "set-layout"
	default:
		return "none"
	}
}

// Command travels the reverse channel: a status bar asking the window
// manager to change state. Arg is a tag bitmask for tag commands and a
// layout index for CommandSetLayout.
type Command struct {
	Kind      CommandKind
	Arg       uint32
	Monitor   int32
	Timestamp uint64
}

// ViewTag builds a command switching the monitor's view to the tags in mask.
func ViewTag(mask uint32, monitor int32) Command {
	return Command{Kind: CommandViewTag, Arg: mask, Monitor: monitor, Timestamp: NowMillis()}
}

// ToggleTag builds a command toggling the tags in mask on the monitor.
func ToggleTag(mask uint32, monitor int32) Command {
	return Command{Kind: CommandToggleTag, Arg: mask, Monitor: monitor, Timestamp: NowMillis()}
}

// SetLayout builds a command selecting the layout at index on the monitor.
func SetLayout(index uint32, monitor int32) Command {
	return Command{Kind: CommandSetLayout, Arg: index, Monitor: monitor, Timestamp: NowMillis()}
}
