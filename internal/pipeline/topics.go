package pipeline

import (
	"context"

	"emperror.dev/errors"
)

// DefaultTopics is the built-in rotation used until real trend discovery
// exists.
var DefaultTopics = []string{
	"Yapay Zeka İşsizliği",
	"Kripto Para Regülasyonu",
	"Popüler Kültür İkonları",
	"Eğitim Sistemindeki Değişiklikler",
	"Sokak Hayvanları Yasası",
	"Futbol Hakem Hataları",
	"Sosyal Medya Yasakları",
	"Uzaktan Çalışma vs Ofis",
}

var ErrNoTopics = errors.NewPlain("topic list is empty")

// TopicSource produces the topic for the next run. NextTopic has no side
// effect; Done records that a run on topic finished without aborting, so an
// aborted run retries the same topic next time.
type TopicSource interface {
	NextTopic(ctx context.Context) (string, error)
	Done(ctx context.Context, topic string) error
}

// StaticTopics always returns the same topic.
type StaticTopics string

func (t StaticTopics) NextTopic(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoTopics
	}
	return string(t), nil
}

func (StaticTopics) Done(context.Context, string) error { return nil }

// CursorStore persists small JSON records; *state.File satisfies it.
type CursorStore interface {
	Load(key string, dst interface{}) error
	Update(key string, dst interface{}, fn func() error) error
}

const cursorKey = "topics:cursor"

type cursor struct {
	Next int `json:"next"`
}

// RotatingTopics walks a fixed list, remembering its position across
// processes so consecutive one-shot runs pick different topics.
type RotatingTopics struct {
	topics []string
	store  CursorStore
}

func NewRotatingTopics(store CursorStore, topics []string) *RotatingTopics {
	return &RotatingTopics{topics: topics, store: store}
}

func (r *RotatingTopics) NextTopic(ctx context.Context) (string, error) {
	if len(r.topics) == 0 {
		return "", ErrNoTopics
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var c cursor
	if err := r.store.Load(cursorKey, &c); err != nil {
		return "", errors.WrapIf(err, "read topic cursor")
	}
	return r.topics[r.index(c)], nil
}

// Done moves the cursor past topic. It is a no-op when the cursor has
// already moved on, so a repeated Done does not skip a topic.
func (r *RotatingTopics) Done(ctx context.Context, topic string) error {
	if len(r.topics) == 0 {
		return ErrNoTopics
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var c cursor
	err := r.store.Update(cursorKey, &c, func() error {
		idx := r.index(c)
		if r.topics[idx] == topic {
			c.Next = (idx + 1) % len(r.topics)
		}
		return nil
	})
	return errors.WrapIf(err, "advance topic cursor")
}

func (r *RotatingTopics) index(c cursor) int {
	idx := c.Next % len(r.topics)
	if idx < 0 {
		return 0
	}
	return idx
}
