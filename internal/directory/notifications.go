package directory

import (
	"context"

	"sectorboard/api/internal/store"
)

const notificationPageSize = 50

func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, userID, unreadOnly, notificationPageSize)
}

// MarkRead only touches the caller's own unread notifications.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return notFound(s.store.MarkNotificationRead(ctx, userID, id, s.now()))
}
