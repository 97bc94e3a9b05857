package event

import (
	"encoding/json"
	"helpdesk-chat/domain"
	"helpdesk-chat/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecode_SendMessage(t *testing.T) {
	req := require.New(t)
	var payload SendMessagePayload

	err := Decode(json.RawMessage(`{"senderId":"alice","receiverId":"bob","message":"hi"}`), &payload)
	req.NoError(err)
	req.Equal(SendMessagePayload{SenderID: "alice", ReceiverID: "bob", Message: "hi"}, payload)
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"missing data", ``, errors.ErrMalformedEvent},
		{"not an object", `"alice"`, errors.ErrMalformedEvent},
		{"empty receiver", `{"senderId":"alice","receiverId":"","message":"hi"}`, errors.ErrInvalidIdentity},
		{"numeric identity", `{"senderId":42,"receiverId":"bob","message":"hi"}`, errors.ErrMalformedEvent},
		{"bad characters", `{"senderId":"alice","receiverId":"bob smith","message":"hi"}`, errors.ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload SendMessagePayload
			require.ErrorIs(t, Decode(json.RawMessage(tt.data), &payload), tt.want)
		})
	}
}

func TestDecodeIdentity(t *testing.T) {
	req := require.New(t)

	id, err := DecodeIdentity(json.RawMessage(`"agent-7"`))
	req.NoError(err)
	req.Equal("agent-7", id)

	_, err = DecodeIdentity(json.RawMessage(`7`))
	req.ErrorIs(err, errors.ErrMalformedEvent)

	_, err = DecodeIdentity(json.RawMessage(`""`))
	req.ErrorIs(err, errors.ErrInvalidIdentity)
}

func TestOutbound_MessageShape(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := domain.Message{
		ID: "m1", Sender: "alice", Receiver: "bob", Content: "hello",
		Status: domain.StatusDelivered, CreatedAt: at,
	}

	bytes, err := json.Marshal(NewReceiveMessage(msg))
	req.NoError(err)
	req.JSONEq(`{"event":"receive_message","data":{
		"_id":"m1","sender":"alice","receiver":"bob","message":"hello",
		"status":"delivered","createdAt":"2026-03-01T10:00:00Z"}}`, string(bytes))

	bytes, err = json.Marshal(NewOnlineUsers(nil))
	req.NoError(err)
	req.JSONEq(`{"event":"online_users","data":[]}`, string(bytes))

	bytes, err = json.Marshal(NewMessageSeen("m1"))
	req.NoError(err)
	req.JSONEq(`{"event":"message_seen","data":{"messageId":"m1"}}`, string(bytes))
}

func TestTryPublish_NeverBlocks(t *testing.T) {
	req := require.New(t)
	ch := make(chan DomainEvent, 1)

	req.True(TryPublish(ch, MessageSeen{MessageID: "1"}))
	req.False(TryPublish(ch, MessageSeen{MessageID: "2"}))
	req.False(TryPublish(nil, MessageSeen{MessageID: "3"}))

	evt := <-ch
	req.Equal(NameMessageSeen, evt.Name())
	req.Equal("1", evt.(MessageSeen).MessageID)
}
