package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pledgekit/PledgeKit/app/models"
	"github.com/pledgekit/PledgeKit/internal/pkg/idempotency"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
	"gorm.io/gorm"
)

// In-memory stand-ins for the GORM-backed repositories, matching their
// conditional-update and unique-insert semantics.

type memRepo struct {
	mu            sync.Mutex
	contributions map[string]*models.Contribution
	projects      map[uint]*models.Project
	subscriptions map[uint]*models.Subscription
	events        map[string]*models.PaymentWebhookEvent
	nextEventID   uint
	nextSubID     uint
}

func newMemRepo() *memRepo {
	return &memRepo{
		contributions: make(map[string]*models.Contribution),
		projects:      make(map[uint]*models.Project),
		subscriptions: make(map[uint]*models.Subscription),
		events:        make(map[string]*models.PaymentWebhookEvent),
	}
}

func (r *memRepo) CreateContribution(c *models.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.contributions[c.ID] = &cp
	return nil
}

func (r *memRepo) GetContributionByID(id string) (*models.Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contributions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) GetContributionByProviderPaymentID(pid string) (*models.Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contributions {
		if c.ProviderPaymentID == pid && pid != "" {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CompleteContribution(id, checkoutID, paymentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contributions[id]
	if !ok || c.Status != models.ContributionStatusPending {
		return false, nil
	}
	c.Status = models.ContributionStatusSucceeded
	c.ProviderCheckoutID = checkoutID
	c.ProviderPaymentID = paymentID
	return true, nil
}

func (r *memRepo) TransitionContribution(id, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contributions[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *memRepo) GetProjectByID(id uint) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) UpsertSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.subscriptions {
		if existing.ProjectID == sub.ProjectID && existing.SubscriberID == sub.SubscriberID {
			existing.PriceCents = sub.PriceCents
			existing.Interval = sub.Interval
			existing.Status = sub.Status
			existing.ProviderSubscriptionID = sub.ProviderSubscriptionID
			*sub = *existing
			return nil
		}
	}
	r.nextSubID++
	sub.ID = r.nextSubID
	cp := *sub
	r.subscriptions[sub.ID] = &cp
	return nil
}

func (r *memRepo) GetSubscriptionByProviderID(pid string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.ProviderSubscriptionID == pid && pid != "" {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) UpdateSubscriptionStatus(id uint, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscriptions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sub.Status = status
	return nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.events[event.ProviderEventID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	cp := *event
	r.events[event.ProviderEventID] = &cp
	stored := cp
	return true, &stored, nil
}

func (r *memRepo) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memRepo) RecordWebhookError(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.ID == id {
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memRepo) ListUnprocessedWebhookEvents(limit int) ([]models.PaymentWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentWebhookEvent
	for _, event := range r.events {
		if event.ProcessedAt == nil {
			out = append(out, *event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memGateway struct {
	mu       sync.Mutex
	sessions int
}

func (g *memGateway) CreateCheckoutSession(ctx context.Context, in payments.CheckoutSessionInput) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	id := fmt.Sprintf("cs_test_%d", g.sessions)
	return &payments.CheckoutSession{ID: id, URL: "https://pay.test/" + id}, nil
}

func (g *memGateway) CreateSubscriptionSession(ctx context.Context, in payments.SubscriptionSessionInput) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	id := fmt.Sprintf("cs_sub_%d", g.sessions)
	return &payments.CheckoutSession{ID: id, URL: "https://pay.test/" + id, SubscriptionID: fmt.Sprintf("sub_%d", g.sessions)}, nil
}

type memIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*models.IdempotencyRecord
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{records: make(map[string]*models.IdempotencyRecord)}
}

func (s *memIdempotencyStore) InsertPlaceholder(rec *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	cp := *rec
	s.records[rec.Key] = &cp
	stored := cp
	return true, &stored, nil
}

func (s *memIdempotencyStore) SaveResponse(key string, status int, body []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		rec.ResponseStatus = &status
		rec.ResponseBody = string(body)
		rec.ExpiresAt = expiresAt
	}
	return nil
}

func (s *memIdempotencyStore) DeleteExpired(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// newTestApp wires a fiber app with the payment routes against in-memory
// backends and returns the pieces the tests inspect.
func newTestApp(repo *memRepo) (*fiber.App, *realtime.Hub) {
	hub := realtime.NewHub()
	svc := payments.NewService(repo, &memGateway{}, hub, nil)
	InitializePaymentControllers(svc, hub)

	app := fiber.New()
	app.Post("/api/v1/payments/webhook", HandlePaymentWebhook)

	gate := idempotency.New(newMemIdempotencyStore(), time.Hour)
	app.Post("/api/v1/contributions/checkout", gate, HandleContributionCheckout)
	app.Post("/api/v1/subscriptions/checkout", gate, HandleSubscriptionCheckout)
	return app, hub
}
