package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

func TestDecodeConversations_Shapes(t *testing.T) {
	bodies := map[string]string{
		"array":    `[{"id":"c1","unreadCount":2},{"id":"c2"}]`,
		"wrapped":  `{"conversations":[{"id":"c1","unreadCount":2},{"id":"c2"}]}`,
		"data key": `{"data":[{"id":"c1","unreadCount":2},{"id":"c2"}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			convs, err := DecodeConversations([]byte(body))
			require.NoError(t, err)
			require.Len(t, convs, 2)
			assert.Equal(t, "c1", convs[0].ID)
			assert.Equal(t, 2, convs[0].UnreadCount)
			assert.Equal(t, 0, convs[1].UnreadCount)
		})
	}
}

func TestDecodeConversations_Fields(t *testing.T) {
	body := `[{
		"id": 42,
		"userId": "u9",
		"userName": "Dana",
		"userAvatar": "https://img/a.png",
		"productId": 7,
		"productTitle": "Road bike",
		"productImage": "https://img/p.png",
		"lastMessage": "still available?",
		"lastMessageTime": "2024-05-01T10:00:00Z",
		"unreadCount": -3,
		"isOnline": true
	}]`

	convs, err := DecodeConversations([]byte(body))
	require.NoError(t, err)
	require.Len(t, convs, 1)

	c := convs[0]
	assert.Equal(t, "42", c.ID)
	assert.Equal(t, "u9", c.CounterpartID)
	assert.Equal(t, "Dana", c.CounterpartName)
	assert.Equal(t, "7", c.ListingID)
	assert.Equal(t, "Road bike", c.ListingTitle)
	assert.Equal(t, "still available?", c.LastMessageText)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), c.LastMessageAt)
	assert.Equal(t, 0, c.UnreadCount, "negative counts are clamped")
	assert.True(t, c.CounterpartOnline)
}

func TestDecodeConversations_DuplicatesAndMissingIDs(t *testing.T) {
	body := `[{"id":"c1","unreadCount":1},{"unreadCount":4},{"id":"c1","unreadCount":9}]`
	convs, err := DecodeConversations([]byte(body))
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
}

func TestDecodeConversations_Invalid(t *testing.T) {
	_, err := DecodeConversations([]byte(""))
	assert.Error(t, err)
	_, err = DecodeConversations([]byte(`{"conversations": 3}`))
	assert.Error(t, err)
}

func TestTime_EpochMillis(t *testing.T) {
	var v struct {
		At Time `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":1714557600000}`), &v))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), v.At.Time)

	require.NoError(t, json.Unmarshal([]byte(`{"at":"1714557600000"}`), &v))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), v.At.Time)

	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &v))
	assert.True(t, v.At.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"at":"yesterday"}`), &v))
}

func TestDecodeEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ev, err := DecodeEvent(Frame{
		Event: EventMessage,
		Data:  json.RawMessage(`{"id":"m1","text":"hi","senderId":5,"timestamp":"2024-05-01T11:59:00Z","isRead":false,"conversationId":"c1"}`),
	}, now)
	require.NoError(t, err)
	msg, ok := ev.(domain.MessageReceivedEvent)
	require.True(t, ok)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, "5", msg.SenderID)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC), msg.SentAt)

	ev, err = DecodeEvent(Frame{Event: EventMessagesRead, Data: json.RawMessage(`{"conversationId":"c1","userId":"me"}`)}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationReadEvent{ConversationID: "c1", ReaderID: "me", EventTime: now}, ev)

	ev, err = DecodeEvent(Frame{Event: EventUserStatus, Data: json.RawMessage(`{"userId":"u2","isOnline":true}`)}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceChangedEvent{UserID: "u2", Online: true, EventTime: now}, ev)
}

func TestDecodeEvent_UnknownAndMalformed(t *testing.T) {
	ev, err := DecodeEvent(Frame{Event: "typing", Data: json.RawMessage(`{}`)}, time.Now())
	assert.NoError(t, err)
	assert.Nil(t, ev)

	_, err = DecodeEvent(Frame{Event: EventMessage, Data: json.RawMessage(`[1,2]`)}, time.Now())
	assert.Error(t, err)
}

func TestEncodeEvent_RoundTripsThroughDecode(t *testing.T) {
	sent := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	in := domain.MessageReceivedEvent{ConversationID: "c1", MessageID: "m1", SenderID: "u2", Text: "ok", SentAt: sent}

	frame, err := EncodeEvent(in)
	require.NoError(t, err)
	assert.Equal(t, EventMessage, frame.Event)

	out, err := DecodeEvent(frame, sent)
	require.NoError(t, err)
	assert.Equal(t, in.ConversationID, out.(domain.MessageReceivedEvent).ConversationID)
	assert.Equal(t, sent, out.(domain.MessageReceivedEvent).SentAt)

	_, err = EncodeEvent(domain.UnreadCountChangedEvent{})
	assert.Error(t, err)
}
