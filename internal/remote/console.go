package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"schoolbell/internal/agenda"
	"schoolbell/internal/device"
	"schoolbell/internal/eventbus"
	"schoolbell/internal/jobs"
	"schoolbell/internal/schedule"
	"schoolbell/internal/storage"
	kit "schoolbell/internal/transport"
	logx "schoolbell/pkg/logx"
)

// Bells plays and stops sounds on request. Satisfied by *ringer.Ringer.
type Bells interface {
	Ring(ctx context.Context, s device.Sound, actor string) error
	Silence(ctx context.Context, actor string) error
	Next() agenda.NextOccurrence
}

type AgendaView interface {
	Agenda() (agenda.Agenda, bool)
}

type DeviceStatus interface {
	Status() device.Status
}

type JobsView interface {
	Snapshot() []jobs.Info
}

// Deps are the collaborators commands act on. Audit, Jobs and Bus may be nil.
type Deps struct {
	Store  *schedule.Store
	Agenda AgendaView
	Bells  Bells
	Device DeviceStatus
	Audit  storage.Store
	Jobs   JobsView
	Bus    eventbus.Bus
}

type Options struct {
	Owners      []int64
	AlertChat   int64
	AlertThread int
	// HandlerTimeout bounds one command.
	HandlerTimeout time.Duration
}

// Request is one command invocation.
type Request struct {
	Msg     kit.Message
	Command string
	Args    []string

	out strings.Builder
}

func (r *Request) Actor() string {
	if r.Msg.FromUsername != "" {
		return "@" + r.Msg.FromUsername
	}
	return fmt.Sprintf("id:%d", r.Msg.FromID)
}

func (r *Request) Reply(format string, args ...any) {
	if r.out.Len() > 0 {
		r.out.WriteByte('\n')
	}
	fmt.Fprintf(&r.out, format, args...)
}

type command struct {
	name    string
	usage   string
	help    string
	handler HandlerFunc
}

type Console struct {
	tr   kit.Adapter
	deps Deps
	log  logx.Logger

	mu   sync.RWMutex
	opt  Options
	own  map[int64]struct{}
	cmds map[string]command
	list []command

	alerts *rate.Limiter
	mw     []Middleware
}

func New(tr kit.Adapter, deps Deps, opt Options, log logx.Logger) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.HandlerTimeout <= 0 {
		opt.HandlerTimeout = 15 * time.Second
	}
	c := &Console{
		tr:     tr,
		deps:   deps,
		log:    log.With(logx.String("comp", "remote")),
		cmds:   map[string]command{},
		alerts: rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
	c.SetOptions(opt)
	c.mw = []Middleware{MWPanicRecover(c.log), MWRequestLog(c.log)}
	c.register()
	return c
}

// SetOptions replaces owners and the alert target.
func (c *Console) SetOptions(opt Options) {
	own := make(map[int64]struct{}, len(opt.Owners))
	for _, id := range opt.Owners {
		own[id] = struct{}{}
	}
	c.mu.Lock()
	if opt.HandlerTimeout <= 0 {
		opt.HandlerTimeout = c.opt.HandlerTimeout
	}
	c.opt = opt
	c.own = own
	c.mu.Unlock()
}

func (c *Console) options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opt
}

func (c *Console) isOwner(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.own[id]
	return ok
}

func (c *Console) add(name, usage, help string, h HandlerFunc) {
	cmd := command{name: name, usage: usage, help: help, handler: h}
	c.cmds[name] = cmd
	c.list = append(c.list, cmd)
}

// Commands is the menu published to the chat platform.
func (c *Console) Commands() []kit.Command {
	out := make([]kit.Command, 0, len(c.list))
	for _, cmd := range c.list {
		out = append(out, kit.Command{Command: cmd.name, Description: cmd.help})
	}
	return out
}

// Run starts the transport and serves commands until ctx ends.
func (c *Console) Run(ctx context.Context) error {
	in := make(chan kit.Message, 32)
	if err := c.tr.Start(ctx, in); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.tr.Stop(sctx)
	}()

	if err := c.tr.SetCommands(ctx, c.Commands()); err != nil {
		c.log.Warn("menu update failed", logx.Err(err))
	}

	var events <-chan eventbus.Event
	if c.deps.Bus != nil {
		ch, unsub := c.deps.Bus.Subscribe(32, eventbus.RingDropped, eventbus.RingFailed, eventbus.ScheduleSaveFail)
		defer unsub()
		events = ch
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-in:
			if reply := c.Handle(ctx, m); reply != "" {
				if err := c.tr.SendText(ctx, m.ChatID, m.ThreadID, reply); err != nil {
					c.log.Warn("reply failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
				}
			}
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.alert(ctx, e)
		}
	}
}

// Handle runs one incoming message and returns the reply text. Messages
// from non-owners and non-commands get no reply.
func (c *Console) Handle(ctx context.Context, m kit.Message) string {
	name, args, ok := parseCommand(m.Text)
	if !ok {
		return ""
	}
	if !c.isOwner(m.FromID) {
		c.log.Warn("command from non-owner ignored", logx.Int64("from_id", m.FromID), logx.String("cmd", name))
		return ""
	}
	cmd, ok := c.cmds[name]
	if !ok {
		return fmt.Sprintf("Unknown command /%s. Try /help.", name)
	}

	req := &Request{Msg: m, Command: name, Args: args}
	h := Chain(cmd.handler, append(c.mw, MWTimeout(c.options().HandlerTimeout))...)
	if err := h(ctx, req); err != nil {
		return "⚠️ " + describeErr(err, cmd)
	}
	return req.out.String()
}

func describeErr(err error, cmd command) string {
	switch {
	case errors.Is(err, errUsage):
		return "usage: " + cmd.usage
	case errors.Is(err, schedule.ErrCapacityExceeded):
		return "no room for another bell: " + err.Error()
	case errors.Is(err, schedule.ErrIndexOutOfRange):
		return "no such bell"
	case errors.Is(err, device.ErrAlarmActive):
		return "alarm is running; /stop it first"
	}
	return err.Error()
}

func (c *Console) alert(ctx context.Context, e eventbus.Event) {
	opt := c.options()
	if opt.AlertChat == 0 {
		return
	}
	if !c.alerts.Allow() {
		c.log.Debug("alert suppressed by rate limit", logx.String("type", e.Type))
		return
	}
	text := formatAlert(e)
	if err := c.tr.SendText(ctx, opt.AlertChat, opt.AlertThread, text); err != nil {
		c.log.Warn("alert send failed", logx.String("type", e.Type), logx.Err(err))
	}
}

func formatAlert(e eventbus.Event) string {
	switch e.Type {
	case eventbus.RingDropped:
		if d, ok := e.Data.(eventbus.RingData); ok {
			return fmt.Sprintf("🔕 Missed %s due at %s (late by %s)", d.Kind, d.FireAt.Format("15:04:05"), d.Lag.Round(time.Second))
		}
	case eventbus.RingFailed:
		if d, ok := e.Data.(eventbus.RingData); ok {
			return fmt.Sprintf("⚠️ %s failed: %s", d.Kind, d.Err)
		}
	case eventbus.ScheduleSaveFail:
		return fmt.Sprintf("⚠️ Schedule save failed: %v", e.Data)
	}
	return "⚠️ " + e.Type
}

func sortedJobs(in []jobs.Info) []jobs.Info {
	sort.Slice(in, func(i, j int) bool { return in[i].Name < in[j].Name })
	return in
}
