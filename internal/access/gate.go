package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/ticketbot/core/logger"
)

// ErrAdminRevoke is returned when something tries to revoke the admin.
var ErrAdminRevoke = errors.New("access: the admin cannot be revoked")

// Request describes an unauthorized user asking for access.
type Request struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Compact renders the requester as "@username | full name | id=<id>".
func (r Request) Compact() string {
	username := "-"
	if u := strings.TrimSpace(r.Username); u != "" {
		username = "@" + u
	}
	full := strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
	if full == "" {
		full = "-"
	}
	return fmt.Sprintf("%s | %s | id=%d", username, full, r.UserID)
}

// Notifier delivers access requests to the admin.
type Notifier interface {
	NotifyAccessRequest(ctx context.Context, req Request) error
}

// Gate answers authorization checks from an in-memory copy of the allow-list
// and writes changes through to the Store.
type Gate struct {
	store   Store
	adminID int64
	log     *slog.Logger

	mu      sync.RWMutex
	members map[int64]Member
	pending map[int64]Request
	denied  map[int64]struct{}
}

// NewGate creates a gate. Call Load before serving traffic.
func NewGate(store Store, adminID int64) *Gate {
	return &Gate{
		store:   store,
		adminID: adminID,
		log:     logger.Component("access"),
		members: make(map[int64]Member),
		pending: make(map[int64]Request),
		denied:  make(map[int64]struct{}),
	}
}

// AdminID returns the configured admin user id.
func (g *Gate) AdminID() int64 { return g.adminID }

// EnsureAdmin stores the configured admin with the admin role.
func (g *Gate) EnsureAdmin(ctx context.Context) error {
	if err := g.store.Upsert(ctx, g.adminID, RoleAdmin); err != nil {
		return err
	}
	g.mu.Lock()
	g.members[g.adminID] = Member{UserID: g.adminID, Role: RoleAdmin, AddedAt: time.Now()}
	g.mu.Unlock()
	return nil
}

// Load replaces the cached allow-list with the store contents.
func (g *Gate) Load(ctx context.Context) error {
	members, err := g.store.List(ctx)
	if err != nil {
		return err
	}
	next := make(map[int64]Member, len(members)+1)
	for _, m := range members {
		next[m.UserID] = m
	}
	admin := next[g.adminID]
	admin.UserID, admin.Role = g.adminID, RoleAdmin
	next[g.adminID] = admin

	g.mu.Lock()
	g.members = next
	g.mu.Unlock()

	logger.LogEvent(ctx, g.log, slog.LevelInfo, "access.load", slog.Int("members", len(next)))
	return nil
}

// IsAuthorized reports whether user may use the bot.
func (g *Gate) IsAuthorized(user int64) bool {
	if user == g.adminID {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[user]
	return ok
}

// IsAdmin reports whether user is the admin.
func (g *Gate) IsAdmin(user int64) bool {
	return user == g.adminID
}

// Role returns the cached role for user.
func (g *Gate) Role(user int64) (Role, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.members[user]
	return m.Role, ok
}

// Authorize checks req.UserID and, on the first unauthorized contact, asks
// the admin through n. Later attempts by a pending or denied user are
// rejected without another notification.
func (g *Gate) Authorize(ctx context.Context, req Request, n Notifier) bool {
	if g.IsAuthorized(req.UserID) {
		return true
	}

	g.mu.Lock()
	_, isPending := g.pending[req.UserID]
	_, isDenied := g.denied[req.UserID]
	if isPending || isDenied {
		g.mu.Unlock()
		return false
	}
	g.pending[req.UserID] = req
	g.mu.Unlock()

	if n == nil {
		return false
	}
	if err := n.NotifyAccessRequest(ctx, req); err != nil {
		// Forget the request so the next attempt notifies again.
		g.mu.Lock()
		delete(g.pending, req.UserID)
		g.mu.Unlock()
		logger.LogEvent(ctx, g.log, slog.LevelWarn, "access.notify",
			slog.String("status", "fail"),
			slog.Int64("target_user_id", req.UserID),
			slog.String("err", err.Error()),
		)
		return false
	}
	logger.LogEvent(ctx, g.log, slog.LevelInfo, "access.notify",
		slog.String("status", "ok"),
		slog.Int64("target_user_id", req.UserID),
	)
	return false
}

// Approve allows user with role and clears any pending or denied mark. It
// returns the pending request, if one existed.
func (g *Gate) Approve(ctx context.Context, user int64, role Role) (Request, error) {
	if user == g.adminID {
		role = RoleAdmin
	}
	if err := g.store.Upsert(ctx, user, role); err != nil {
		return Request{}, err
	}
	g.mu.Lock()
	req, ok := g.pending[user]
	if !ok {
		req = Request{UserID: user}
	}
	g.members[user] = Member{UserID: user, Role: role, AddedAt: time.Now()}
	delete(g.pending, user)
	delete(g.denied, user)
	g.mu.Unlock()

	logger.LogEvent(ctx, g.log, slog.LevelInfo, "access.approve",
		slog.Int64("target_user_id", user),
		slog.String("role", string(role)),
	)
	return req, nil
}

// Deny rejects a pending user. Denied users are not announced again until
// approved explicitly.
func (g *Gate) Deny(ctx context.Context, user int64) Request {
	g.mu.Lock()
	req, ok := g.pending[user]
	if !ok {
		req = Request{UserID: user}
	}
	delete(g.pending, user)
	g.denied[user] = struct{}{}
	g.mu.Unlock()

	logger.LogEvent(ctx, g.log, slog.LevelInfo, "access.deny", slog.Int64("target_user_id", user))
	return req
}

// Revoke removes user from the allow-list. It reports whether the user was listed.
func (g *Gate) Revoke(ctx context.Context, user int64) (bool, error) {
	if user == g.adminID {
		return false, ErrAdminRevoke
	}
	removed, err := g.store.Remove(ctx, user)
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	_, cached := g.members[user]
	delete(g.members, user)
	g.mu.Unlock()

	logger.LogEvent(ctx, g.log, slog.LevelInfo, "access.revoke",
		slog.Int64("target_user_id", user),
		slog.Bool("removed", removed || cached),
	)
	return removed || cached, nil
}

// List returns cached members sorted by user id.
func (g *Gate) List() []Member {
	g.mu.RLock()
	out := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Pending reports whether user awaits an admin decision.
func (g *Gate) Pending(user int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.pending[user]
	return ok
}
