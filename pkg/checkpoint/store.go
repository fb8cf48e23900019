package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// Store persists the change stream resume token between watcher runs
type Store interface {
	// Save persists the resume token
	Save(ctx context.Context, token bson.Raw) error

	// Load retrieves the last saved resume token. Returns nil if no token exists.
	Load(ctx context.Context) (bson.Raw, error)
}

// File keeps the token in a local file
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Save writes to a temporary file and renames it over the previous token
func (s *File) Save(_ context.Context, token bson.Raw) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if _, err := tmp.Write(token); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

func (s *File) Load(_ context.Context) (bson.Raw, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return bson.Raw(data), nil
}

// Redis keeps the token under a single key
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{
		client: client,
		key:    key,
	}
}

func (s *Redis) Save(ctx context.Context, token bson.Raw) error {
	return s.client.Set(ctx, s.key, []byte(token), 0).Err()
}

func (s *Redis) Load(ctx context.Context) (bson.Raw, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return bson.Raw(data), nil
}
