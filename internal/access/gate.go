// Package access decides whether an inbound event may reach the archival pipeline and
// handles passphrase enrollment and administrator commands.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

// DecisionObserver counts decisions.
type DecisionObserver interface {
	ObserveDecision(decision string)
}

// Gate is the access-control entry point.
type Gate struct {
	cfg       Config
	cache     *whitelist.Cache
	directory channel.Directory
	notifier  channel.Notifier
	catalog   *reply.Catalog
	observer  DecisionObserver
	logger    *slog.Logger
}

func NewGate(log *slog.Logger, cfg Config, cache *whitelist.Cache, directory channel.Directory, notifier channel.Notifier, catalog *reply.Catalog, observer DecisionObserver) *Gate {
	if log == nil {
		log = slog.Default()
	}
	if catalog == nil {
		catalog = reply.DefaultCatalog()
	}
	if cfg.DenialPolicy == "" {
		cfg.DenialPolicy = DenySilent
	}
	cfg.Passphrase = strings.TrimSpace(cfg.Passphrase)
	cfg.AdminUserID = strings.TrimSpace(cfg.AdminUserID)
	return &Gate{
		cfg:       cfg,
		cache:     cache,
		directory: directory,
		notifier:  notifier,
		catalog:   catalog,
		observer:  observer,
		logger:    log.With(slog.String("service", "access")),
	}
}

// Init loads the whitelist and seeds the administrator. When the store is unreachable the
// gate serves an administrator-only view until a later Refresh succeeds.
func (g *Gate) Init(ctx context.Context) {
	admin, ok := g.adminPrincipal()
	if !ok {
		g.logger.Warn("no administrator configured, admin commands disabled")
	}
	if err := g.Refresh(ctx); err != nil {
		g.logger.Error("whitelist unavailable, running degraded", slog.Any("error", err))
		if ok && !g.cache.Contains(admin) {
			g.cache.Admit(adminEntry(admin))
		}
	}
}

func adminEntry(p whitelist.Principal) whitelist.Entry {
	return whitelist.Entry{Principal: p, Label: "admin"}
}

// Refresh reloads the whitelist and seeds the administrator when missing.
func (g *Gate) Refresh(ctx context.Context) error {
	if err := g.cache.Refresh(ctx); err != nil {
		return err
	}
	admin, ok := g.adminPrincipal()
	if !ok {
		return nil
	}
	seeded, err := g.cache.Seed(ctx, adminEntry(admin))
	if err != nil {
		return fmt.Errorf("seed administrator: %w", err)
	}
	if seeded {
		g.logger.Info("administrator seeded", slog.String("id", admin.ID))
	}
	return nil
}

func (g *Gate) adminPrincipal() (whitelist.Principal, bool) {
	return principal(whitelist.KindUser, g.cfg.AdminUserID)
}

// IsAdmin reports whether userID is the administrator.
func (g *Gate) IsAdmin(userID string) bool {
	return g.cfg.AdminUserID != "" && strings.TrimSpace(userID) == g.cfg.AdminUserID
}

// IsAllowed reports whether the event's principal is whitelisted.
func (g *Gate) IsAllowed(src channel.Source) bool {
	p, ok := PrincipalOf(src)
	return ok && g.cache.Contains(p)
}

// Authorize classifies ev and performs any enrollment or admin command it carries.
func (g *Gate) Authorize(ctx context.Context, ev channel.Event) Outcome {
	out := g.authorize(ctx, ev)
	if g.observer != nil {
		g.observer.ObserveDecision(string(out.Decision))
	}
	g.logger.Debug("authorized",
		slog.String("event_id", ev.ID),
		slog.String("principal", out.Principal.String()),
		slog.String("decision", string(out.Decision)))
	return out
}

func (g *Gate) authorize(ctx context.Context, ev channel.Event) Outcome {
	p, ok := PrincipalOf(ev.Source)
	if !ok {
		return Outcome{Decision: Denied, Err: ErrNoPrincipal}
	}
	if ev.IsText() && g.IsAdmin(ev.Source.UserID) {
		if cmd, ok := g.parseCommand(ev.TrimmedText()); ok {
			if ev.Source.Kind == channel.SourceUser || g.cfg.AdminCommandsInGroups {
				return g.runCommand(ctx, ev, p, cmd)
			}
		}
	}
	if g.cache.Contains(p) {
		return Outcome{Decision: Allowed, Principal: p}
	}
	if ev.IsText() && g.cfg.Passphrase != "" && ev.TrimmedText() == g.cfg.Passphrase {
		return g.enroll(ctx, ev, p)
	}
	out := Outcome{Decision: Denied, Principal: p}
	if g.cfg.DenialPolicy == DenyExplicit {
		out.Reply = g.catalog.Denied
		g.send(ctx, ev, out.Reply)
	}
	return out
}

func (g *Gate) enroll(ctx context.Context, ev channel.Event, p whitelist.Principal) Outcome {
	entry := whitelist.Entry{Principal: p, Label: g.lookupLabel(ctx, ev.Source)}
	if _, err := g.cache.Add(ctx, entry); err != nil {
		g.logger.Error("enrollment failed", slog.String("principal", p.String()), slog.Any("error", err))
		out := Outcome{Decision: RequiresEnrollment, Principal: p, Reply: g.catalog.PersistFailed, Err: err}
		g.send(ctx, ev, out.Reply)
		return out
	}
	text := g.catalog.EnrolledUser
	if p.Kind == whitelist.KindGroup {
		text = g.catalog.EnrolledGroup
	}
	g.logger.Info("enrolled", slog.String("principal", p.String()), slog.String("label", entry.Label))
	g.send(ctx, ev, text)
	return Outcome{Decision: Enrolled, Principal: p, Reply: text}
}

// lookupLabel is best effort; failures leave the label empty.
func (g *Gate) lookupLabel(ctx context.Context, src channel.Source) string {
	if g.directory == nil {
		return ""
	}
	var (
		name string
		err  error
	)
	switch src.Kind {
	case channel.SourceGroup:
		name, err = g.directory.GroupName(ctx, src.GroupID)
	case channel.SourceUser:
		name, err = g.directory.UserDisplayName(ctx, src.UserID)
	default:
		return ""
	}
	if err != nil {
		g.logger.Debug("label lookup failed", slog.Any("error", err))
		return ""
	}
	return name
}

func (g *Gate) send(ctx context.Context, ev channel.Event, text string) {
	if g.notifier == nil || text == "" {
		return
	}
	if err := channel.Deliver(ctx, g.notifier, ev.ReplyHandle, ev.Source.ConversationKey(), text); err != nil {
		g.logger.Warn("gate reply failed", slog.String("event_id", ev.ID), slog.Any("error", err))
	}
}

// List returns the whitelist snapshot.
func (g *Gate) List() []whitelist.Entry {
	return g.cache.List()
}

// Add whitelists p and reports whether it was new.
func (g *Gate) Add(ctx context.Context, e whitelist.Entry) (bool, error) {
	return g.cache.Add(ctx, e)
}

// Remove deletes p. The administrator is refused with ErrAdminProtected.
func (g *Gate) Remove(ctx context.Context, p whitelist.Principal) (bool, error) {
	if admin, ok := g.adminPrincipal(); ok && p == admin {
		return false, ErrAdminProtected
	}
	return g.cache.Remove(ctx, p)
}

// RemoveAll clears every entry except the administrator and returns how many were removed.
func (g *Gate) RemoveAll(ctx context.Context) (int, error) {
	admin, hasAdmin := g.adminPrincipal()
	removed, err := g.cache.Reset(ctx, func(e whitelist.Entry) bool {
		return hasAdmin && e.Principal == admin
	})
	if err != nil {
		return 0, err
	}
	if hasAdmin && !g.cache.Contains(admin) {
		if _, err := g.cache.Add(ctx, adminEntry(admin)); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func isPersistErr(err error) bool {
	return errors.Is(err, whitelist.ErrPersist)
}
