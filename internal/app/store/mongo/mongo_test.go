package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/store"
	"chatterbox/internal/app/store/mongo"
	"chatterbox/internal/app/store/storetest"
	"chatterbox/internal/pkg/randx"
)

// TestMongoStore runs against TEST_MONGO_URI in a throwaway database.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	s, err := mongo.Open(context.Background(), uri, "chatterbox_test_"+randx.ID()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	storetest.Run(t, func(t *testing.T) store.Store { return s })
}
