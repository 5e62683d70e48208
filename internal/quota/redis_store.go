package quota

import (
	"context"

	"emperror.dev/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/mediocregopher/radix/v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const redisKey = "pollwave:quota:window"

// ErrContention is returned when the optimistic transaction keeps losing to
// other writers.
var ErrContention = errors.NewPlain("quota window contention")

// RedisStore shares the window between processes through WATCH/MULTI/EXEC.
// It narrows the multi-worker gap but is not a hard guarantee: clock skew
// between hosts still shifts window boundaries.
type RedisStore struct {
	pool       *radix.Pool
	key        string
	maxRetries int
}

func NewRedisStore(addr string) (*RedisStore, error) {
	pool, err := radix.NewPool("tcp", addr, 4)
	if err != nil {
		return nil, errors.Wrapf(err, "connect redis %s", addr)
	}
	return &RedisStore{pool: pool, key: redisKey, maxRetries: 5}, nil
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}

func (s *RedisStore) Update(ctx context.Context, fn func(w *Window) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		committed := false
		err := s.pool.Do(radix.WithConn(s.key, func(conn radix.Conn) error {
			if err := conn.Do(radix.Cmd(nil, "WATCH", s.key)); err != nil {
				return err
			}

			w, err := s.read(conn)
			if err != nil {
				_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
				return err
			}
			if err := fn(&w); err != nil {
				_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
				return err
			}
			raw, err := json.Marshal(w)
			if err != nil {
				_ = conn.Do(radix.Cmd(nil, "UNWATCH"))
				return errors.Wrap(err, "encode quota window")
			}

			if err := conn.Do(radix.Cmd(nil, "MULTI")); err != nil {
				return err
			}
			if err := conn.Do(radix.Cmd(nil, "SET", s.key, string(raw))); err != nil {
				_ = conn.Do(radix.Cmd(nil, "DISCARD"))
				return err
			}
			var replies []string
			result := radix.MaybeNil{Rcv: &replies}
			if err := conn.Do(radix.Cmd(&result, "EXEC")); err != nil {
				return err
			}
			committed = !result.Nil
			return nil
		}))
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
	}
	return ErrContention
}

func (s *RedisStore) View(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	var w Window
	err := s.pool.Do(radix.WithConn(s.key, func(conn radix.Conn) error {
		var err error
		w, err = s.read(conn)
		return err
	}))
	return w, err
}

func (s *RedisStore) read(conn radix.Conn) (Window, error) {
	var raw []byte
	result := radix.MaybeNil{Rcv: &raw}
	if err := conn.Do(radix.Cmd(&result, "GET", s.key)); err != nil {
		return Window{}, err
	}
	var w Window
	if result.Nil {
		return w, nil
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return Window{}, errors.Wrap(err, "decode quota window")
	}
	return w, nil
}

var _ Store = (*RedisStore)(nil)
