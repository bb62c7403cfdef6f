package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testOptions() Options {
	return Options{
		Price:       20000,
		Currency:    "KZT",
		Description: "Подписка на закрытый канал",
		Period:      30 * 24 * time.Hour,
		Location:    time.UTC,
	}
}

type sentMessage struct {
	UserID  int64
	Text    string
	Buttons []Button
}

type fakeMessenger struct {
	mu        sync.Mutex
	messages  []sentMessage
	links     []sentMessage
	operators []string
	revoked   []int64
	revokeErr error
	notifyErr error
}

func (m *fakeMessenger) NotifyUser(ctx context.Context, userID int64, text string, buttons ...Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.messages = append(m.messages, sentMessage{UserID: userID, Text: text, Buttons: buttons})
	return nil
}

func (m *fakeMessenger) SendAccessLink(ctx context.Context, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.links = append(m.links, sentMessage{UserID: userID, Text: text})
	return nil
}

func (m *fakeMessenger) NotifyOperators(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators = append(m.operators, text)
	return nil
}

func (m *fakeMessenger) Revoke(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revoked = append(m.revoked, userID)
	return nil
}

type fakeCharger struct {
	mu       sync.Mutex
	requests []robokassa.ChargeRequest
	chargeFn func(r robokassa.ChargeRequest) error
}

func (c *fakeCharger) Charge(ctx context.Context, r robokassa.ChargeRequest) error {
	c.mu.Lock()
	c.requests = append(c.requests, r)
	fn := c.chargeFn
	c.mu.Unlock()
	if fn != nil {
		return fn(r)
	}
	return nil
}

type fakeLinks struct{}

func (fakeLinks) Build(r robokassa.LinkRequest) string {
	return fmt.Sprintf("https://pay.test/?InvId=%d&user=%d&recurring=%t", r.InvID, r.UserID, r.Recurring)
}

type seqInvoices struct {
	mu   sync.Mutex
	next int64
}

func (s *seqInvoices) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SubscriptionEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e domain.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
