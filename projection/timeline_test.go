package projection

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func message(username, content string) domain.Message {
	return domain.Message{ID: uuid.New(), Username: username, Content: content, ReceivedAt: time.Now()}
}

func TestTimeline_Consume_MessageReceived(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	alice := message("Alice", "Hello Bob")
	clara := message("Clara", "Hi Bob")

	req.False(timeline.Consume(event.MessageReceived{Message: alice, Index: 0}))
	req.False(timeline.Consume(event.MessageReceived{Message: clara, Index: 1}))

	req.Equal(2, timeline.Len())
	messages := timeline.Messages()
	req.Equal("Alice", messages[0].Username)
	req.Equal("Clara", messages[1].Username)
}

func TestTimeline_IgnoresDuplicates(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	m := message("Alice", "once")

	timeline.Consume(event.MessageReceived{Message: m, Index: 0})
	timeline.Consume(event.MessageReceived{Message: m, Index: 0})

	req.Equal(1, timeline.Len())
}

func TestTimeline_GapThenResync(t *testing.T) {
	req := require.New(t)

	// Given a timeline that saw the first message only
	timeline := NewTimeline()
	first, second, third := message("a", "1"), message("b", "2"), message("a", "3")
	timeline.Consume(event.MessageReceived{Message: first, Index: 0})

	// When the third arrives without the second
	gap := timeline.Consume(event.MessageReceived{Message: third, Index: 2})

	// Then a gap is reported and nothing is appended
	req.True(gap)
	req.Equal(1, timeline.Len())

	// When resynced from the authoritative log
	timeline.Resync([]domain.Message{first, second, third})

	// Then the timeline matches it and replays are ignored
	req.Equal([]domain.Message{first, second, third}, timeline.Messages())
	req.False(timeline.Consume(event.MessageReceived{Message: third, Index: 2}))
	req.Equal(3, timeline.Len())
	req.Equal([]string{"a", "b"}, timeline.Authors())
}

func TestTimeline_TracksRoom(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	timeline.Consume(event.RoomJoined{Room: "lobby"})
	req.Equal("lobby", timeline.Room())

	timeline.Consume(event.RoomLeft{Room: "lobby"})
	req.Empty(timeline.Room())

	timeline.Consume(event.RoomJoined{Room: "garden"})
	timeline.Consume(event.ConnectionChanged{From: domain.StateJoined, To: domain.StateDisconnected, LostRoom: "garden"})
	req.Empty(timeline.Room())
}
