package waitlist

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"log/slog"

	"github.com/ketowell/waitlist-manager/internal/dto"
)

// Subscribe adds email to the newsletter and sends the welcome email.
func (s *Service) Subscribe(ctx context.Context, email, name string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)

	if err := s.repo.Subscribers().Subscribe(ctx, email, name); err != nil {
		return err
	}

	_, err = s.mailer.SendNewSubscriber(ctx, email, &dto.NewSubscriber{
		Preheader:      "Recipes, research and launch news",
		Name:           name,
		UnsubscribeURL: s.unsubscribeURL(email),
	})
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't send new subscriber email",
			slog.String("err", err.Error()),
		)
	}
	return nil
}

func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	return s.repo.Subscribers().Unsubscribe(ctx, email)
}

func (s *Service) unsubscribeURL(email string) string {
	return fmt.Sprintf("%s/newsletter/unsubscribe?email=%s", strings.TrimRight(s.c.BaseURL, "/"), url.QueryEscape(email))
}
