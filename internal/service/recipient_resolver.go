package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/kursadbilgin/inventory-notifier/internal/repository"
)

// Scope describes who a notification is being published on behalf of.
type Scope struct {
	ActorID      *int64
	ExcludeActor bool
}

// RecipientPolicy decides which users receive a notification. The result is
// a point-in-time snapshot: it is resolved once per publish and never
// re-evaluated.
type RecipientPolicy interface {
	ResolveRecipients(ctx context.Context, scope Scope) ([]int64, error)
}

// ActiveUsersPolicy delivers to every user in ACTIVE status.
type ActiveUsersPolicy struct {
	users repository.UserRepository
}

func NewActiveUsersPolicy(users repository.UserRepository) *ActiveUsersPolicy {
	return &ActiveUsersPolicy{users: users}
}

func (p *ActiveUsersPolicy) ResolveRecipients(ctx context.Context, scope Scope) ([]int64, error) {
	ids, err := p.users.ListActiveIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	return applyScope(ids, scope), nil
}

// StaticRecipients always resolves to the same set. Useful for system
// broadcasts to a fixed on-call group.
type StaticRecipients []int64

func (s StaticRecipients) ResolveRecipients(_ context.Context, scope Scope) ([]int64, error) {
	return applyScope(s, scope), nil
}

// applyScope sorts and de-duplicates ids, then drops the actor when asked to.
func applyScope(ids []int64, scope Scope) []int64 {
	recipients := normalizeRecipients(ids)
	if scope.ExcludeActor && scope.ActorID != nil {
		actor := *scope.ActorID
		recipients = slices.DeleteFunc(recipients, func(id int64) bool { return id == actor })
	}
	return recipients
}

func normalizeRecipients(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
