// Package directory covers the people-and-places side of a sector: personal lists,
// extra assignees, subsector memberships, notifications, invitations and user removal.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sectorboard/api/internal/email"
	"sectorboard/api/internal/rbac"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
)

var (
	ErrForbidden    = rbac.ErrForbidden
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Store interface {
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	ListProfilesBySector(ctx context.Context, sectorID string) ([]store.Profile, error)
	GetSector(ctx context.Context, sectorID string) (store.Sector, error)
	GetSubsector(ctx context.Context, subsectorID string) (store.Subsector, error)
	ListSubsectors(ctx context.Context, sectorID string) ([]store.Subsector, error)
	DeleteUser(ctx context.Context, userID string) error

	ListPersonalLists(ctx context.Context, ownerID string) ([]store.PersonalList, error)
	GetPersonalList(ctx context.Context, id string) (store.PersonalList, error)
	InsertPersonalList(ctx context.Context, l store.PersonalList) (store.PersonalList, error)
	RenamePersonalList(ctx context.Context, id, name string) error
	DeletePersonalList(ctx context.Context, id string) error

	ListAssignees(ctx context.Context, activityID string) ([]store.ActivityAssignee, error)
	InsertAssignee(ctx context.Context, activityID, userID string) error
	DeleteAssignee(ctx context.Context, activityID, userID string) error

	ListSubsectorMemberships(ctx context.Context, profileID string) ([]store.SubsectorMembership, error)
	InsertSubsectorMembership(ctx context.Context, profileID, subsectorID string) error
	DeleteSubsectorMembership(ctx context.Context, profileID, subsectorID string) error

	InsertNotification(ctx context.Context, n store.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error

	InsertInvitation(ctx context.Context, inv store.Invitation) error
	GetInvitation(ctx context.Context, id string) (store.Invitation, error)
	ListInvitations(ctx context.Context, sectorID string) ([]store.Invitation, error)
	SetInvitationStatus(ctx context.Context, id, status string) error
}

// ActivityReader resolves an activity with the viewer's visibility applied.
type ActivityReader interface {
	Get(ctx context.Context, v store.Viewer, id string) (store.Activity, error)
}

// Mailer sends invitations. *email.Service satisfies it.
type Mailer interface {
	IsConfigured() bool
	SendInvitationEmail(to string, data email.InvitationData) error
}

type Options struct {
	AppName       string
	PublicURL     string
	InvitationTTL time.Duration
}

type Service struct {
	store      Store
	activities ActivityReader
	bus        realtime.Bus
	mailer     Mailer
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires the service. bus and mailer may be nil.
func NewService(st Store, activities ActivityReader, bus realtime.Bus, mailer Mailer, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AppName == "" {
		opts.AppName = "SectorBoard"
	}
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = 7 * 24 * time.Hour
	}
	return &Service{store: st, activities: activities, bus: bus, mailer: mailer, opts: opts, logger: logger, now: time.Now}
}

// Members lists the profiles of the viewer's sector.
func (s *Service) Members(ctx context.Context, v store.Viewer) ([]store.Profile, error) {
	return s.store.ListProfilesBySector(ctx, v.SectorID)
}

func (s *Service) Subsectors(ctx context.Context, v store.Viewer) ([]store.Subsector, error) {
	items, err := s.store.ListSubsectors(ctx, v.SectorID)
	if items == nil {
		items = []store.Subsector{}
	}
	return items, err
}

// authorize loads the actor's profile and checks action against sectorID.
func (s *Service) authorize(ctx context.Context, actorID string, action rbac.Action, sectorID string) (store.Profile, error) {
	actor, err := s.store.GetProfile(ctx, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, ErrForbidden
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("get actor profile: %w", err)
	}
	if err := rbac.Authorize(actor, action, sectorID); err != nil {
		return store.Profile{}, err
	}
	return actor, nil
}

// sameSectorTarget loads a profile the actor may manage.
func (s *Service) sameSectorTarget(ctx context.Context, actorID, targetID string, action rbac.Action) (store.Profile, store.Profile, error) {
	target, err := s.store.GetProfile(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, store.Profile{}, ErrNotFound
	}
	if err != nil {
		return store.Profile{}, store.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	actor, err := s.authorize(ctx, actorID, action, target.SectorID)
	if err != nil {
		return store.Profile{}, store.Profile{}, err
	}
	return actor, target, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
