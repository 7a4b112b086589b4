package domain

import "strconv"

// Actor is the identity on whose behalf a mutation runs. A nil *Actor is an
// anonymous or system-triggered change.
type Actor struct {
	ID       int32
	Username string
	IsStaff  bool
}

// DisplayName is used in notification bodies
func (a *Actor) DisplayName() string {
	if a == nil {
		return "system"
	}
	if a.Username != "" {
		return a.Username
	}

	return "user #" + strconv.FormatInt(int64(a.ID), 10)
}

// UserID returns the id to persist in history, nil for an anonymous actor
func (a *Actor) UserID() *int32 {
	if a == nil {
		return nil
	}
	id := a.ID

	return &id
}

// CanChange reports whether the actor may mutate the task: participants and staff only
func (a *Actor) CanChange(task *Task) bool {
	if a == nil {
		return false
	}

	return a.IsStaff || task.HasParticipant(a.ID)
}

// CanDestroy is the elevated-privilege check shared by tasks and boards
func (a *Actor) CanDestroy() bool {
	return a != nil && a.IsStaff
}
