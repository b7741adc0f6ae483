package cluster

import (
	"errors"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// mockJS is an in-memory JSContext. Subscribers are invoked synchronously
// from Publish; a subject ending in ".>" matches every subject below it.
type mockJS struct {
	mu        sync.Mutex
	streams   map[string]*nats.StreamInfo
	subs      []*mockSub
	published []*nats.Msg
	failures  int
	attempts  int
}

type mockSub struct {
	owner   *mockJS
	subject string
	cb      nats.MsgHandler
	active  bool
}

func newMockJS() *mockJS {
	return &mockJS{streams: make(map[string]*nats.StreamInfo)}
}

func (m *mockJS) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	m.mu.Lock()
	m.attempts++
	if m.failures > 0 {
		m.failures--
		m.mu.Unlock()
		return nil, errors.New("nats: timeout")
	}
	msg := &nats.Msg{Subject: subj, Data: data}
	m.published = append(m.published, msg)
	var callbacks []nats.MsgHandler
	for _, s := range m.subs {
		if s.active && subjectMatches(s.subject, subj) {
			callbacks = append(callbacks, s.cb)
		}
	}
	seq := uint64(len(m.published))
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(&nats.Msg{Subject: subj, Data: data})
	}
	return &nats.PubAck{Stream: "MOCK", Sequence: seq}, nil
}

func subjectMatches(pattern, subject string) bool {
	if strings.HasSuffix(pattern, ".>") {
		return strings.HasPrefix(subject, strings.TrimSuffix(pattern, ">"))
	}
	return pattern == subject
}

func (m *mockJS) Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &mockSub{owner: m, subject: subj, cb: cb, active: true}
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *mockJS) StreamInfo(stream string) (*nats.StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.streams[stream]; ok {
		return info, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (m *mockJS) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &nats.StreamInfo{Config: *cfg}
	m.streams[cfg.Name] = info
	return info, nil
}

func (m *mockJS) messages() []*nats.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*nats.Msg(nil), m.published...)
}

func (s *mockSub) Unsubscribe() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.active = false
	return nil
}
