package directory

import (
	"context"
	"fmt"
	"strings"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/util"
)

func (s *Service) Lists(ctx context.Context, ownerID string) ([]store.PersonalList, error) {
	return s.store.ListPersonalLists(ctx, ownerID)
}

func (s *Service) CreateList(ctx context.Context, ownerID, name string) (created store.PersonalList, err error) {
	defer func() { observability.RecordMutation("list_create", err) }()
	name = strings.TrimSpace(name)
	if name == "" {
		return store.PersonalList{}, fmt.Errorf("%w: list name is required", ErrInvalidInput)
	}
	return s.store.InsertPersonalList(ctx, store.PersonalList{ID: util.NewID(), OwnerID: ownerID, Name: name})
}

func (s *Service) RenameList(ctx context.Context, ownerID, id, name string) (err error) {
	defer func() { observability.RecordMutation("list_rename", err) }()
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: list name is required", ErrInvalidInput)
	}
	if err := s.ownList(ctx, ownerID, id); err != nil {
		return err
	}
	return notFound(s.store.RenamePersonalList(ctx, id, name))
}

func (s *Service) DeleteList(ctx context.Context, ownerID, id string) (err error) {
	defer func() { observability.RecordMutation("list_delete", err) }()
	if err := s.ownList(ctx, ownerID, id); err != nil {
		return err
	}
	return notFound(s.store.DeletePersonalList(ctx, id))
}

// ownList hides other users' lists behind ErrNotFound.
func (s *Service) ownList(ctx context.Context, ownerID, id string) error {
	l, err := s.store.GetPersonalList(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if l.OwnerID != ownerID {
		return ErrNotFound
	}
	return nil
}
