// Package events is the in-process fan-out used to feed chat lines and
// plugin lifecycle events to observers such as the websocket server.
package events

import (
	"sync"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
	"rubot/internal/logger"
	"rubot/internal/usecase/plugins"
)

const (
	TopicChatMessage    = "chat:message"
	TopicPluginLoaded   = plugins.EventLoaded
	TopicPluginUnloaded = plugins.EventUnloaded

	defaultBufferSize = 128
)

// Bus delivers each payload to every subscriber of its topic. Slow
// subscribers lose payloads instead of blocking publishers.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[int]chan any
	nextSubID int
	closed    bool
	log       *log.Logger

	dropMu     sync.Mutex
	dropCounts map[string]uint64
}

func NewBus(l *log.Logger) *Bus {
	if l == nil {
		l = logger.With("events")
	}
	return &Bus{
		subs:       make(map[string]map[int]chan any),
		dropCounts: make(map[string]uint64),
		log:        l,
	}
}

func (b *Bus) Publish(topic string, payload any) {
	if topic == "" {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			b.recordDrop(topic)
		}
	}
}

// PublishChat publishes the wire form of an inbound chat line.
func (b *Bus) PublishChat(msg domain.Message) {
	b.Publish(TopicChatMessage, NewChatMessageDTO(msg))
}

// Subscribe returns the channel for topic and the function that ends the
// subscription. The channel is closed by unsubscribe or Close.
func (b *Bus) Subscribe(topic string) (<-chan any, func()) {
	ch := make(chan any, defaultBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan any)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs, ok := b.subs[topic]
			if !ok {
				return
			}
			if _, ok := subs[id]; !ok {
				return
			}
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subs, topic)
			}
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Close ends every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, topic)
	}
}

// Drops returns how many payloads were lost for topic.
func (b *Bus) Drops(topic string) uint64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropCounts[topic]
}

func (b *Bus) recordDrop(topic string) {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	b.dropCounts[topic]++
	if b.dropCounts[topic]%100 == 1 {
		b.log.Warn("dropping payloads", "topic", topic, "total", b.dropCounts[topic])
	}
}
