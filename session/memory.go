package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/exchange/bot"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

type memorySession struct {
	id         string
	bot        bot.Bot
	messages   []protocol.Message
	clearIndex int
	hasClear   bool
	mu         sync.RWMutex
}

// NewMemorySession creates a Session backed by an in-memory slice.
// The session is assigned a unique UUIDv7 identifier.
func NewMemorySession(b bot.Bot) Session {
	return &memorySession{
		id:  uuid.Must(uuid.NewV7()).String(),
		bot: b,
	}
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Bot() bot.Bot {
	return s.bot
}

func (s *memorySession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.CloneAll(s.messages)
}

func (s *memorySession) Message(id string) (protocol.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return protocol.Message{}, false
	}
	return s.messages[i].Clone(), true
}

func (s *memorySession) ClearContextIndex() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clearIndex, s.hasClear
}

func (s *memorySession) SetClearContextIndex(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index > len(s.messages) {
		return ErrInvalidClearIndex
	}
	s.clearIndex = index
	s.hasClear = true
	return nil
}

func (s *memorySession) ClearContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearIndex = len(s.messages)
	s.hasClear = true
}

func (s *memorySession) Append(msgs ...protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]protocol.Message, 0, len(s.messages)+len(msgs))
	next = append(next, s.messages...)
	next = append(next, protocol.CloneAll(msgs)...)
	s.messages = next
}

func (s *memorySession) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id)
}

func (s *memorySession) Splice(id string, n int, msgs ...protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.splice(s.indexOf(id), n, msgs)
}

func (s *memorySession) SpliceAt(index, n int, msgs ...protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.splice(index, n, msgs)
}

func (s *memorySession) Update(id string, fn func(*protocol.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(s.indexOf(id), fn)
}

func (s *memorySession) UpdateAt(index int, fn func(*protocol.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(index, fn)
}

func (s *memorySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.clearIndex = 0
	s.hasClear = false
}

func (s *memorySession) splice(start, n int, msgs []protocol.Message) bool {
	if start < 0 || start >= len(s.messages) {
		return false
	}
	end := min(start+max(n, 0), len(s.messages))

	next := make([]protocol.Message, 0, len(s.messages)-(end-start)+len(msgs))
	next = append(next, s.messages[:start]...)
	next = append(next, protocol.CloneAll(msgs)...)
	next = append(next, s.messages[end:]...)
	s.messages = next
	s.clampClearIndex()
	return true
}

func (s *memorySession) update(i int, fn func(*protocol.Message)) bool {
	if i < 0 || i >= len(s.messages) {
		return false
	}
	fn(&s.messages[i])
	return true
}

func (s *memorySession) indexOf(id string) int {
	return slices.IndexFunc(s.messages, func(m protocol.Message) bool {
		return m.ID == id
	})
}

func (s *memorySession) clampClearIndex() {
	if s.hasClear && s.clearIndex > len(s.messages) {
		s.clearIndex = len(s.messages)
	}
}
