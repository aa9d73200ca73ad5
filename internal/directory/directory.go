// Package directory is an in-memory user directory. Transports feed it the
// users they see; the dispatcher resolves mentions through it.
package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
)

// Directory indexes users by id and by lower-cased mention.
type Directory struct {
	mu        sync.RWMutex
	byMention map[string]models.User // keyed by lower-cased mention
	byID      map[string]models.User
}

// New returns a directory seeded with users.
func New(users ...models.User) *Directory {
	d := &Directory{
		byMention: make(map[string]models.User),
		byID:      make(map[string]models.User),
	}
	for _, u := range users {
		d.Remember(u)
	}
	return d
}

// Remember adds or refreshes a user. A user who changed their handle loses
// the old mention.
func (d *Directory) Remember(u models.User) {
	if u.ID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[u.ID]; ok && old.Mention != "" {
		delete(d.byMention, strings.ToLower(old.Mention))
	}
	d.byID[u.ID] = u
	if u.Mention != "" {
		d.byMention[strings.ToLower(u.Mention)] = u
	}
}

// ResolveMention is case-insensitive; the leading "@" is optional.
func (d *Directory) ResolveMention(ctx context.Context, mention string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	key := strings.ToLower(strings.TrimSpace(mention))
	if !strings.HasPrefix(key, "@") {
		key = "@" + key
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byMention[key]
	if !ok {
		return models.User{}, fmt.Errorf("%w: %s", interfaces.ErrUserNotFound, mention)
	}
	return u, nil
}

// Lookup finds a user by id.
func (d *Directory) Lookup(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	return u, ok
}

// ListUsers returns users ordered by mention.
func (d *Directory) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mention < out[j].Mention })
	return out, nil
}

var _ interfaces.UserDirectory = (*Directory)(nil)
