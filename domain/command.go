package domain

// Command is a caller intent handled by the session loop.
type Command interface {
	Name() string
}

type ConnectCommand struct{}

func (ConnectCommand) Name() string { return "connect" }

type JoinRoomCommand struct {
	Room string
}

func (JoinRoomCommand) Name() string { return "joinRoom" }

type LeaveRoomCommand struct{}

func (LeaveRoomCommand) Name() string { return "leaveRoom" }

// ToggleRoomCommand joins Room when not joined and leaves otherwise.
type ToggleRoomCommand struct {
	Room string
}

func (ToggleRoomCommand) Name() string { return "toggleRoom" }

type SendMessageCommand struct {
	Text string
}

func (SendMessageCommand) Name() string { return "sendMessage" }

type SetUsernameCommand struct {
	Username string
}

func (SetUsernameCommand) Name() string { return "setUsername" }

type SetDraftCommand struct {
	Text string
}

func (SetDraftCommand) Name() string { return "setDraft" }

// SendDraftCommand sends the pending draft and clears it on acceptance.
type SendDraftCommand struct{}

func (SendDraftCommand) Name() string { return "sendDraft" }
