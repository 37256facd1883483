package assistant

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var (
	ErrUnknownRole = errors.New("unknown message role")
	ErrEmptyQuery  = errors.New("empty query")
)

// Conversation is an append-only message log seeded with the greeting.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
}

func NewConversation() *Conversation {
	return &Conversation{
		messages: []Message{{Role: RoleAssistant, Content: Greeting}},
	}
}

func (c *Conversation) Append(m Message) error {
	if err := checkRole(m.Role); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return nil
}

// appendPair adds a question and its answer under one lock so concurrent
// submits never interleave.
func (c *Conversation) appendPair(question, answer Message) error {
	if err := checkRole(question.Role); err != nil {
		return err
	}
	if err := checkRole(answer.Role); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, question, answer)
	return nil
}

func checkRole(r Role) error {
	if r != RoleUser && r != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrUnknownRole, r)
	}
	return nil
}

// All returns a copy of the log in insertion order.
func (c *Conversation) All() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Session pairs a conversation with a responder.
type Session struct {
	conv      *Conversation
	responder *Responder
}

func NewSession(r *Responder) *Session {
	if r == nil {
		r = NewDefaultResponder()
	}
	return &Session{conv: NewConversation(), responder: r}
}

// Submit records text as a user message followed by the reply. Blank input is
// rejected with ErrEmptyQuery and leaves the log untouched.
func (s *Session) Submit(text string) (question, answer Message, err error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, Message{}, ErrEmptyQuery
	}

	question = Message{Role: RoleUser, Content: text}
	answer = Message{Role: RoleAssistant, Content: s.responder.Respond(text)}

	if err := s.conv.appendPair(question, answer); err != nil {
		return Message{}, Message{}, err
	}
	return question, answer, nil
}

func (s *Session) Messages() []Message {
	return s.conv.All()
}
