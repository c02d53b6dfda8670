package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func TestRedisStore_GetMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "fs:k")).
		Return(mock.Result(mock.RedisNil()))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_GetError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "fs:k")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	_, err := s.Get(context.Background(), "k")
	var ce *Error
	if !errors.As(err, &ce) || ce.Op != OpGet {
		t.Fatalf("Get() error = %v, want cache.Error{GET}", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cache.Error should unwrap to the cause")
	}
}

func TestRedisStore_SetWithTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("PTTL", "fs:k")).
			Return(mock.Result(mock.RedisInt64(-2))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return len(cmd) == 5 && cmd[0] == "SET" && cmd[1] == "fs:k" && cmd[2] == "v" && cmd[3] == "EX"
			})).
			Return(mock.Result(mock.RedisString("OK"))),
	)

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	if err := s.Set(context.Background(), "k", []byte("v"), SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}

func TestRedisStore_SetKeepsSticky(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("PTTL", "fs:k")).
		Return(mock.Result(mock.RedisInt64(-1)))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	if err := s.Set(context.Background(), "k", []byte("v"), SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}

func TestRedisStore_SetStickyReplace(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "fs:k", "v")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	err := s.Set(context.Background(), "k", []byte("v"), SetOptions{Sticky: true, Replace: true})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}

func TestRedisStore_Exists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "fs:k")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	ok, err := s.Exists(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true", ok, err)
	}
}

func TestRedisStore_KeysStripsPrefix(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && cmd[3] == "fs:*"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(mock.RedisString("fs:a"), mock.RedisString("fs:b")),
		)))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	keys, err := s.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestRedisStore_ClearSkipsSticky(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "SCAN" })).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(mock.RedisString("fs:sticky"), mock.RedisString("fs:plain")),
		)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("PTTL", "fs:sticky")).
		Return(mock.Result(mock.RedisInt64(-1)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("PTTL", "fs:plain")).
		Return(mock.Result(mock.RedisInt64(5000)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "fs:plain")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewRedisStoreForTest(c, "fs:", time.Minute)
	if err := s.Clear(context.Background(), false); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
}
