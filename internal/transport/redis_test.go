package transport

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	client := setupMiniredis(t)
	ctx := context.Background()

	id, err := PublishToStream(ctx, client, "s", map[string]interface{}{
		"text":  "hello",
		"count": 3,
		"ratio": 92.5,
		"ok":    true,
		"tags":  []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Values["text"])
	assert.Equal(t, "3", msgs[0].Values["count"])
	assert.Equal(t, "92.5", msgs[0].Values["ratio"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
	assert.Equal(t, `["a","b"]`, msgs[0].Values["tags"])
}
