package access

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

type opKind int

const (
	opList opKind = iota
	opAdd
	opRemove
	opRemoveAll
)

type command struct {
	op  opKind
	arg string
}

// parseCommand matches the admin grammar: "<list>", "<add> <id>", "<remove> <id>",
// "<remove> <all>". Any unicode space separates words.
func (g *Gate) parseCommand(text string) (command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return command{}, false
	}
	c := g.cfg.Commands
	switch {
	case len(fields) == 1 && fields[0] == c.List:
		return command{op: opList}, true
	case len(fields) == 2 && fields[0] == c.Add:
		return command{op: opAdd, arg: fields[1]}, true
	case len(fields) == 2 && fields[0] == c.Remove && fields[1] == c.All:
		return command{op: opRemoveAll}, true
	case len(fields) == 2 && fields[0] == c.Remove:
		return command{op: opRemove, arg: fields[1]}, true
	default:
		return command{}, false
	}
}

func (g *Gate) runCommand(ctx context.Context, ev channel.Event, p whitelist.Principal, cmd command) Outcome {
	text, err := g.execute(ctx, cmd)
	if err != nil {
		g.logger.Warn("admin command failed", slog.Int("op", int(cmd.op)), slog.String("arg", cmd.arg), slog.Any("error", err))
	}
	g.send(ctx, ev, text)
	return Outcome{Decision: AdminHandled, Principal: p, Reply: text, Err: err}
}

func (g *Gate) execute(ctx context.Context, cmd command) (string, error) {
	switch cmd.op {
	case opList:
		return g.renderList(), nil
	case opAdd:
		target, err := ParseTarget(cmd.arg)
		if err != nil {
			return reply.Format(g.catalog.InvalidTarget, cmd.arg), err
		}
		added, err := g.Add(ctx, whitelist.Entry{Principal: target})
		if err != nil {
			return g.failureText(cmd.arg, err), err
		}
		if !added {
			return reply.Format(g.catalog.AlreadyListed, target.ID), nil
		}
		g.logger.Info("admin added principal", slog.String("principal", target.String()))
		return reply.Format(g.catalog.Added, target.ID), nil
	case opRemove:
		target, err := ParseTarget(cmd.arg)
		if err != nil {
			return reply.Format(g.catalog.InvalidTarget, cmd.arg), err
		}
		removed, err := g.Remove(ctx, target)
		if err != nil {
			return g.failureText(cmd.arg, err), err
		}
		if !removed {
			return reply.Format(g.catalog.NotListed, target.ID), nil
		}
		g.logger.Info("admin removed principal", slog.String("principal", target.String()))
		return reply.Format(g.catalog.Removed, target.ID), nil
	case opRemoveAll:
		n, err := g.RemoveAll(ctx)
		if err != nil {
			return g.catalog.PersistFailed, err
		}
		g.logger.Info("whitelist cleared", slog.Int("removed", n))
		return g.catalog.Cleared, nil
	default:
		return "", nil
	}
}

func (g *Gate) failureText(arg string, err error) string {
	switch {
	case errors.Is(err, ErrAdminProtected):
		return g.catalog.AdminProtected
	case isPersistErr(err):
		return g.catalog.PersistFailed
	default:
		return reply.Format(g.catalog.InvalidTarget, arg)
	}
}

func (g *Gate) renderList() string {
	var users, groups []string
	for _, e := range g.cache.List() {
		line := e.ID
		if e.Label != "" {
			line += " (" + e.Label + ")"
		}
		if e.Kind == whitelist.KindGroup {
			groups = append(groups, line)
		} else {
			users = append(users, line)
		}
	}
	section := func(lines []string) string {
		if len(lines) == 0 {
			return g.catalog.ListEmpty
		}
		return strings.Join(lines, "\n")
	}
	return g.catalog.ListUsers + "\n" + section(users) + "\n\n" + g.catalog.ListGroups + "\n" + section(groups)
}
