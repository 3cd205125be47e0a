package store

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleManager      Role = "manager"
	RoleCollaborator Role = "collaborator"
)

type ActivityStatus string

const (
	StatusPending    ActivityStatus = "pending"
	StatusInProgress ActivityStatus = "in_progress"
	StatusCompleted  ActivityStatus = "completed"
	StatusArchived   ActivityStatus = "archived"
)

// Valid reports whether the status is one of the board columns.
func (s ActivityStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type HistoryAction string

const (
	HistoryCreated       HistoryAction = "created"
	HistoryStatusChanged HistoryAction = "status_changed"
	HistoryArchived      HistoryAction = "archived"
	HistoryUnarchived    HistoryAction = "unarchived"
	HistoryDeleted       HistoryAction = "deleted"
	HistoryUpdated       HistoryAction = "updated"
)

type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
)

type AuthUser struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Sector struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type Subsector struct {
	ID        string
	SectorID  string
	Name      string
	CreatedAt time.Time
}

type Profile struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	SectorID    string
	SubsectorID *string
	IsApproved  bool
	ApprovedBy  *string
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Activity struct {
	ID          string
	Title       string
	Description string
	Status      ActivityStatus
	Priority    Priority
	DueDate     *time.Time
	AssigneeID  *string
	CreatedBy   string
	SectorID    string
	SubsectorID *string
	ListID      *string
	IsPrivate   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Joined columns, empty when the source row is gone.
	CreatorName   string
	SubsectorName string
}

// ActivityPatch carries a partial update. Nil pointers leave the column untouched.
type ActivityPatch struct {
	Title            *string
	Description      *string
	Status           *ActivityStatus
	Priority         *Priority
	DueDate          *time.Time
	ClearDueDate     bool
	AssigneeID       *string
	ClearAssignee    bool
	SubsectorID      *string
	ListID           *string
	ClearList        bool
	IsPrivate        *bool
	CompletedAt      *time.Time
	ClearCompletedAt bool
}

// Empty reports whether the patch would not change any column.
func (p ActivityPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.AssigneeID == nil && !p.ClearAssignee &&
		p.SubsectorID == nil && p.ListID == nil && !p.ClearList && p.IsPrivate == nil &&
		p.CompletedAt == nil && !p.ClearCompletedAt
}

// ActivityFilter scopes an activity query to what a viewer may see.
type ActivityFilter struct {
	SectorID string
	ViewerID string
	// ViewerRole decides the visibility rule; ViewerSubsectorIDs only matters for collaborators.
	ViewerRole         Role
	ViewerSubsectorIDs []string

	SubsectorID string
	AssigneeID  string
	ListID      string
	Statuses    []ActivityStatus
	// ExcludeStatuses drops rows in any of these statuses.
	ExcludeStatuses []ActivityStatus
	// Text, when set, is matched case-insensitively against title and description.
	Text string
	// IDs restricts the result to these activities; visibility still applies.
	IDs   []string
	Limit int
}

// Viewer is the principal a query runs on behalf of.
type Viewer struct {
	ID       string
	Role     Role
	SectorID string
	// SubsectorIDs lists the profile subsector plus every profile_subsectors row.
	SubsectorIDs []string
}

// Filter returns the visibility part of an ActivityFilter for this viewer.
func (v Viewer) Filter() ActivityFilter {
	return ActivityFilter{
		SectorID:           v.SectorID,
		ViewerID:           v.ID,
		ViewerRole:         v.Role,
		ViewerSubsectorIDs: v.SubsectorIDs,
	}
}

type Subtask struct {
	ID          string
	ActivityID  string
	Title       string
	Description string
	Completed   bool
	OrderIndex  int
	CreatedAt   time.Time
}

type HistoryEntry struct {
	ID          int64
	ActivityID  string
	Action      HistoryAction
	PerformedBy string
	Details     json.RawMessage
	CreatedAt   time.Time
}

type PendingUser struct {
	ID          string
	UserID      string
	Email       string
	Name        string
	SectorID    string
	SubsectorID *string
	Role        Role
	Status      PendingStatus
	ReviewedBy  *string
	ReviewedAt  *time.Time
	CreatedAt   time.Time
}

type PersonalList struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

type ActivityAssignee struct {
	ActivityID  string
	UserID      string
	DisplayName string
	AssignedAt  time.Time
}

type SubsectorMembership struct {
	ProfileID     string
	SubsectorID   string
	SubsectorName string
}

type Notification struct {
	ID         string
	UserID     string
	Kind       string
	Title      string
	Body       string
	ActivityID *string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

type Invitation struct {
	ID          string
	Email       string
	SectorID    string
	SubsectorID *string
	Role        Role
	TokenHash   string
	InvitedBy   string
	Status      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
