package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizrank/internal/notify"
)

func TestHub(t *testing.T) {
	tests := map[string]struct {
		arrange func(h *notify.Hub, a, b *fakeMember)
		assert  func(t *testing.T, h *notify.Hub, a, b *fakeMember)
	}{
		"joining twice is a no-op": {
			arrange: func(h *notify.Hub, a, b *fakeMember) {
				h.Join(a, notify.QuizTopic(5))
			},
			assert: func(t *testing.T, h *notify.Hub, a, b *fakeMember) {
				assert.False(t, h.Join(a, notify.QuizTopic(5)))
				assert.Equal(t, 1, h.Size(notify.QuizTopic(5)))
				assert.Equal(t, 1, h.Deliver(notify.QuizTopic(5), []byte("x")))
				assert.Len(t, a.received(), 1)
			},
		},

		"deliver reaches only members of the topic": {
			arrange: func(h *notify.Hub, a, b *fakeMember) {
				h.Join(a, notify.General)
				h.Join(a, notify.QuizTopic(5))
				h.Join(b, notify.General)
				h.Join(b, notify.QuizTopic(6))
			},
			assert: func(t *testing.T, h *notify.Hub, a, b *fakeMember) {
				assert.Equal(t, 1, h.Deliver(notify.QuizTopic(5), []byte("five")))
				assert.Equal(t, 2, h.Deliver(notify.General, []byte("all")))

				assert.Equal(t, []string{"five", "all"}, a.received())
				assert.Equal(t, []string{"all"}, b.received())
			},
		},

		"leave removes one topic only": {
			arrange: func(h *notify.Hub, a, b *fakeMember) {
				h.Join(a, notify.General)
				h.Join(a, notify.QuizTopic(5))
			},
			assert: func(t *testing.T, h *notify.Hub, a, b *fakeMember) {
				assert.True(t, h.Leave(a.ID(), notify.QuizTopic(5)))
				assert.False(t, h.Leave(a.ID(), notify.QuizTopic(5)))
				assert.Equal(t, []notify.Topic{notify.General}, h.Topics(a.ID()))
				assert.Equal(t, 0, h.Deliver(notify.QuizTopic(5), []byte("x")))
			},
		},

		"disconnect removes every membership": {
			arrange: func(h *notify.Hub, a, b *fakeMember) {
				h.Join(a, notify.General)
				h.Join(a, notify.QuizTopic(5))
				h.Join(a, notify.QuizTopic(6))
				h.Join(b, notify.QuizTopic(6))
			},
			assert: func(t *testing.T, h *notify.Hub, a, b *fakeMember) {
				h.Disconnect(a.ID())
				h.Disconnect(a.ID())

				assert.Empty(t, h.Topics(a.ID()))
				assert.Equal(t, 0, h.Size(notify.General))
				assert.Equal(t, 0, h.Size(notify.QuizTopic(5)))
				assert.Equal(t, 1, h.Size(notify.QuizTopic(6)))
			},
		},

		"a full member is skipped without blocking others": {
			arrange: func(h *notify.Hub, a, b *fakeMember) {
				a.full = true
				h.Join(a, notify.General)
				h.Join(b, notify.General)
			},
			assert: func(t *testing.T, h *notify.Hub, a, b *fakeMember) {
				assert.Equal(t, 1, h.Deliver(notify.General, []byte("x")))
				assert.Empty(t, a.received())
				assert.Equal(t, []string{"x"}, b.received())
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := notify.NewHub()
			a, b := newFakeMember("a"), newFakeMember("b")

			tt.arrange(h, a, b)
			tt.assert(t, h, a, b)
		})
	}
}

type fakeMember struct {
	id   string
	full bool
	ch   chan []byte
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id, ch: make(chan []byte, 16)}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Send(payload []byte) bool {
	if m.full {
		return false
	}
	select {
	case m.ch <- payload:
		return true
	default:
		return false
	}
}

// received drains what has been delivered so far.
func (m *fakeMember) received() []string {
	var out []string
	for {
		select {
		case b := <-m.ch:
			out = append(out, string(b))
		default:
			return out
		}
	}
}
