package client

import "strings"

// InputKind is what a console line asks for.
type InputKind int

const (
	InputEmpty InputKind = iota
	InputText
	InputName
	InputJoin
	InputLeave
	InputToggle
	InputConnect
	InputLog
	InputStatus
	InputHelp
	InputQuit
	InputUnknown
)

// Input is one parsed console line. Arg holds the command argument or,
// for InputText, the whole line.
type Input struct {
	Kind InputKind
	Arg  string
}

var commands = map[string]InputKind{
	"/name":    InputName,
	"/join":    InputJoin,
	"/leave":   InputLeave,
	"/toggle":  InputToggle,
	"/connect": InputConnect,
	"/log":     InputLog,
	"/status":  InputStatus,
	"/help":    InputHelp,
	"/quit":    InputQuit,
}

// Parse reads a console line. A leading "//" escapes a message starting
// with a slash.
func Parse(line string) Input {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return Input{Kind: InputEmpty}
	case strings.HasPrefix(trimmed, "//"):
		return Input{Kind: InputText, Arg: trimmed[1:]}
	case !strings.HasPrefix(trimmed, "/"):
		return Input{Kind: InputText, Arg: trimmed}
	}

	name, arg, _ := strings.Cut(trimmed, " ")
	kind, ok := commands[strings.ToLower(name)]
	if !ok {
		return Input{Kind: InputUnknown, Arg: name}
	}
	return Input{Kind: kind, Arg: strings.TrimSpace(arg)}
}
