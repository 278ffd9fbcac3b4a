package client

import (
	"chat-session/domain"
	"chat-session/observability"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const (
	headerJoined  = "Chat Room: %s"
	headerNoRoom  = "No Room Joined"
	welcome       = "Welcome to the chat!"
	anonymous     = "(anonymous)"
	logTimeFormat = "15:04:05"
)

var (
	headerStyle  = color.New(color.FgCyan, color.OpBold)
	ownStyle     = color.New(color.FgGreen, color.OpBold)
	authorStyle  = color.New(color.FgMagenta)
	noticeStyle  = color.New(color.FgGray)
	hintStyle    = color.New(color.FgYellow)
	failureStyle = color.New(color.FgRed)
	welcomeStyle = color.New(color.FgGreen)
)

// Renderer writes console output. Safe for concurrent use.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
}

func NewRenderer(out io.Writer, colours bool) *Renderer {
	return &Renderer{out: out, colours: colours}
}

func (r *Renderer) paint(style color.Style, text string) string {
	if !r.colours {
		return text
	}
	return style.Render(text)
}

func (r *Renderer) println(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, text)
}

func (r *Renderer) Header(room string) {
	text := headerNoRoom
	if room != "" {
		text = fmt.Sprintf(headerJoined, room)
	}
	r.println(r.paint(headerStyle, "== "+text+" =="))
}

func (r *Renderer) Welcome() {
	r.println(r.paint(welcomeStyle, welcome))
}

// Message renders one log entry. Entries written under self are highlighted.
func (r *Renderer) Message(m domain.Message, self string) {
	author := lo.Ternary(m.Username == "", anonymous, m.Username)
	if m.IsFrom(self) {
		r.println(r.paint(ownStyle, author+": "+m.Content))
		return
	}
	r.println(r.paint(authorStyle, author) + ": " + m.Content)
}

func (r *Renderer) Notice(format string, args ...any) {
	r.println(r.paint(noticeStyle, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Hint(format string, args ...any) {
	r.println(r.paint(hintStyle, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Failure(format string, args ...any) {
	r.println(r.paint(failureStyle, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Status(s domain.Snapshot, stats observability.SessionStats) {
	r.println(fmt.Sprintf("State: %s | User: %s | Room: %s | Messages: %d | Sent: %d | Rejected: %d | Failures: %d | Reconnects: %d | Dropped: %d | Up: %s",
		s.State,
		lo.Ternary(s.Username == "", "-", s.Username),
		lo.Ternary(s.Room == "", "-", s.Room),
		s.Messages,
		stats.MessagesSent,
		stats.Rejected,
		stats.DeliveryFailures,
		stats.ReconnectAttempts,
		stats.DroppedEvents,
		stats.Uptime.Round(time.Second),
	))
}

// Usage renders the process footprint under the status line.
func (r *Renderer) Usage(u observability.ProcessUsage) {
	r.println(fmt.Sprintf("Process: CPU %.1f%% | RAM %.1f%%", u.CPUPercent, u.MemoryPercent))
}

// Log renders the whole message log as a table.
func (r *Renderer) Log(messages []domain.Message, self string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(messages) == 0 {
		_, _ = fmt.Fprintln(r.out, "No messages yet")
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"#", "Time", "Room", "User", "Message"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	table.AppendBulk(lo.Map(messages, func(m domain.Message, i int) []string {
		author := lo.Ternary(m.Username == "", anonymous, m.Username)
		if m.IsFrom(self) {
			author += " (you)"
		}
		return []string{
			strconv.Itoa(i + 1),
			m.ReceivedAt.Format(logTimeFormat),
			lo.Ternary(m.Room == "", "-", m.Room),
			author,
			m.Content,
		}
	}))
	table.Render()
}

func (r *Renderer) Help() {
	r.println(`Commands:
  /name <user>    set your username (not while in a room)
  /connect        connect to the relay
  /join [room]    join a room
  /leave          leave the current room
  /toggle [room]  join or leave a room
  /log            show the message log
  /status         show session state and counters
  /help           show this help
  /quit           exit
Any other line is sent to the current room. Start with // to send a line beginning with /.`)
}
