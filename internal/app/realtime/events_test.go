package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinChatPayload_Accepts_Bare_String_And_Object(t *testing.T) {
	req := require.New(t)

	var bare JoinChatPayload
	req.NoError(json.Unmarshal([]byte(`"chat-1"`), &bare))
	req.Equal("chat-1", bare.ChatID)

	var obj JoinChatPayload
	req.NoError(json.Unmarshal([]byte(`{"chatId":"chat-2"}`), &obj))
	req.Equal("chat-2", obj.ChatID)

	var bad JoinChatPayload
	req.Error(json.Unmarshal([]byte(`42`), &bad))
}
