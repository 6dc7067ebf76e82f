package alerts

import (
	"context"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
)

// Subscriptions is a thin facade over the webhook repository for the
// /risk/webhooks surface (§6).
type Subscriptions struct {
	repo *repository.WebhookRepository
}

func NewSubscriptions(repo *repository.WebhookRepository) *Subscriptions {
	return &Subscriptions{repo: repo}
}

func (s *Subscriptions) Register(ctx context.Context, entityID, webhookURL string) error {
	return s.repo.Subscribe(ctx, entityID, webhookURL)
}

func (s *Subscriptions) Remove(ctx context.Context, entityID, webhookURL string) error {
	return s.repo.Unsubscribe(ctx, entityID, webhookURL)
}

func (s *Subscriptions) List(ctx context.Context, entityID string) ([]models.WebhookSubscription, error) {
	return s.repo.ListByEntity(ctx, entityID)
}
