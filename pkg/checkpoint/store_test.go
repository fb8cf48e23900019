package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCheckpointProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	dir := t.TempDir()

	properties.Property("backends return the last saved token", prop.ForAll(
		func(first, second []byte) bool {
			if len(second) == 0 {
				return true
			}
			stores := []Store{
				NewFile(filepath.Join(dir, "resume.token")),
				NewRedis(redisClient, "standings:resume-token"),
			}
			for _, s := range stores {
				if len(first) > 0 {
					if err := s.Save(context.Background(), bson.Raw(first)); err != nil {
						return false
					}
				}
				if err := s.Save(context.Background(), bson.Raw(second)); err != nil {
					return false
				}
				loaded, err := s.Load(context.Background())
				if err != nil || string(loaded) != string(second) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLoadWithoutCheckpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	token, err := NewFile(filepath.Join(t.TempDir(), "missing")).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, token)

	token, err = NewRedis(client, "missing").Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestFileSaveLeavesNoTemporaries(t *testing.T) {
	dir := t.TempDir()
	s := NewFile(filepath.Join(dir, "resume.token"))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(context.Background(), bson.Raw{byte(i)}))
	}
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	assert.Error(t, NewRedis(client, "k").Save(context.Background(), bson.Raw{1}))
	_, err := NewRedis(client, "k").Load(context.Background())
	assert.Error(t, err)
}
