package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
	"chatterbox/internal/app/store/memory"
	"chatterbox/internal/app/store/storetest"
	"chatterbox/internal/pkg/randx"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestMemoryStore_Returns_Copies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := memory.New()
	c := &model.Chat{ID: randx.ID(), IsGroup: true, Members: []string{"a", "b"}, Admins: []string{"a"}}
	req.NoError(s.CreateChat(ctx, c))

	// When a caller mutates what it passed in and what it got back
	c.Members[0] = "mallory"
	got, err := s.GetChat(ctx, c.ID)
	req.NoError(err)
	got.Admins = append(got.Admins, "mallory")

	// Then the stored chat is untouched
	again, err := s.GetChat(ctx, c.ID)
	req.NoError(err)
	req.Equal([]string{"a", "b"}, again.Members)
	req.Equal([]string{"a"}, again.Admins)
}
