// Package client is the line-oriented console driving a chat session.
package client

import (
	"bufio"
	"chat-session/domain"
	"chat-session/observability"
	"chat-session/projection"
	"chat-session/runtime"
	"io"
	"log/slog"
	"sync"
)

// Session is the part of runtime.Session the console drives.
type Session interface {
	Connect() bool
	JoinRoom(room string) bool
	LeaveRoom() bool
	ToggleRoom(room string) bool
	SetUsername(name string) bool
	SetDraft(text string) bool
	SendDraft() bool
	Snapshot() domain.Snapshot
	Messages() []domain.Message
	Stats() observability.SessionStats
	Subscribe(buffer int) *runtime.Subscription
}

type Config struct {
	// DefaultRoom is used by /join and /toggle without argument.
	DefaultRoom string
	Colours     bool
	// Buffer sizes the console's event subscription, 0 selects the session default.
	Buffer int
	// AutoConnect starts a connection attempt once events are rendered.
	AutoConnect bool
}

// Console reads commands from in and renders session events to out.
type Console struct {
	log      *slog.Logger
	session  Session
	render   *Renderer
	timeline *projection.Timeline
	config   Config
	quit     func()
	usage    func() (observability.ProcessUsage, error)

	in          io.Reader
	lines       chan string
	readOnce    sync.Once
	connectOnce sync.Once
}

// NewConsole builds a console. quit is called on /quit or end of input.
func NewConsole(log *slog.Logger, session Session, in io.Reader, out io.Writer, config Config, quit func()) *Console {
	return &Console{
		log:      log,
		session:  session,
		render:   NewRenderer(out, config.Colours),
		timeline: projection.NewTimeline(),
		config:   config,
		quit:     quit,
		usage:    observability.SampleProcess,
		in:       in,
		lines:    make(chan string),
	}
}

func (c *Console) Timeline() *projection.Timeline { return c.timeline }

// startReader scans in on a single goroutine for the console lifetime,
// so restarted input workers share it.
func (c *Console) startReader() {
	c.readOnce.Do(func() {
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				c.lines <- scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				c.log.Error("Console input failed", "error", err)
			}
		}()
	})
}

// Execute runs one console line and reports whether the console should
// keep reading.
func (c *Console) Execute(line string) bool {
	input := Parse(line)
	switch input.Kind {
	case InputEmpty:
	case InputText:
		c.send(input.Arg)
	case InputName:
		c.setName(input.Arg)
	case InputConnect:
		c.connect()
	case InputJoin:
		c.join(c.room(input.Arg))
	case InputLeave:
		if !c.session.LeaveRoom() {
			c.render.Hint("Not in a room")
		}
	case InputToggle:
		c.toggle(c.room(input.Arg))
	case InputLog:
		c.render.Log(c.session.Messages(), c.session.Snapshot().Username)
	case InputStatus:
		c.render.Status(c.session.Snapshot(), c.session.Stats())
		if usage, err := c.usage(); err == nil {
			c.render.Usage(usage)
		} else {
			c.log.Debug("Process usage unavailable", "error", err)
		}
	case InputHelp:
		c.render.Help()
	case InputQuit:
		c.quit()
		return false
	case InputUnknown:
		c.render.Hint("Unknown command %s, try /help", input.Arg)
	}
	return true
}

func (c *Console) room(arg string) string {
	if arg != "" {
		return arg
	}
	return c.config.DefaultRoom
}

func (c *Console) send(text string) {
	if c.session.SetDraft(text) && c.session.SendDraft() {
		return
	}
	s := c.session.Snapshot()
	switch {
	case s.State != domain.StateJoined:
		c.render.Hint("Join a room before sending (/join <room>)")
	case s.Username == "":
		c.render.Hint("Set a name before sending (/name <user>)")
	default:
		c.render.Hint("Message not sent, it is kept as draft")
	}
}

func (c *Console) setName(name string) {
	if c.session.SetUsername(name) {
		c.render.Notice("You are now %s", displayName(name))
		return
	}
	c.render.Hint("Leave the room before changing your name")
}

func (c *Console) connect() {
	if c.session.Connect() {
		c.render.Notice("Connecting...")
		return
	}
	if state := c.session.Snapshot().State; state != domain.StateDisconnected {
		c.render.Hint("Already %s", state)
		return
	}
	c.render.Failure("Connection attempt refused")
}

func (c *Console) join(room string) {
	if c.session.JoinRoom(room) {
		return
	}
	c.joinHint(room)
}

func (c *Console) toggle(room string) {
	if c.session.ToggleRoom(room) {
		return
	}
	c.joinHint(room)
}

func (c *Console) joinHint(room string) {
	s := c.session.Snapshot()
	switch {
	case room == "":
		c.render.Hint("Room name required (/join <room>)")
	case s.State == domain.StateJoined:
		c.render.Hint("Already in %s, /leave first", s.Room)
	case s.State == domain.StateConnecting:
		c.render.Hint("Still connecting, try again once connected")
	case !s.State.IsOpen():
		c.render.Hint("Connect first (/connect)")
	default:
		c.render.Hint("Could not join %s", room)
	}
}

// autoConnect connects once per console, whatever the number of worker restarts.
func (c *Console) autoConnect() {
	if !c.config.AutoConnect {
		return
	}
	c.connectOnce.Do(c.connect)
}

func displayName(name string) string {
	if name == "" {
		return anonymous
	}
	return name
}
