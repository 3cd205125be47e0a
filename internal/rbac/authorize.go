package rbac

import (
	"errors"

	"sectorboard/api/internal/store"
)

var ErrForbidden = errors.New("forbidden")

// Authorize checks that an approved profile may perform action against sectorID.
// An empty sectorID skips the sector check.
func Authorize(actor store.Profile, action Action, sectorID string) error {
	if !actor.IsApproved {
		return ErrForbidden
	}
	if !Can(Normalize(string(actor.Role)), action) {
		return ErrForbidden
	}
	if sectorID != "" && actor.SectorID != sectorID {
		return ErrForbidden
	}
	return nil
}
