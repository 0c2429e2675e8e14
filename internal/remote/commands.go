package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"schoolbell/internal/device"
)

var errUsage = errors.New("bad usage")

const defaultHistory = 10

func (c *Console) register() {
	c.add("help", "/help", "List commands", c.cmdHelp)
	c.add("status", "/status", "Next bell and device state", c.cmdStatus)
	c.add("schedule", "/schedule", "Show the bell schedule", c.cmdSchedule)
	c.add("agenda", "/agenda", "Show today's actions", c.cmdAgenda)
	c.add("add", "/add", "Add a bell at 00:00", c.cmdAdd)
	c.add("del", "/del N", "Delete bell N", c.cmdDel)
	c.add("set", "/set N [HH:MM] [lead_minutes] [on|off]", "Edit bell N", c.cmdSet)
	c.add("save", "/save", "Save the schedule", c.cmdSave)
	c.add("weekend", "/weekend on|off", "Silence bells on weekends", c.cmdWeekend)
	c.add("ring", "/ring", "Play the bell now", c.playCmd(device.Bell))
	c.add("prebell", "/prebell", "Play the pre-bell now", c.playCmd(device.Prebell))
	c.add("alarm", "/alarm", "Start the alarm", c.playCmd(device.Alarm))
	c.add("stop", "/stop", "Stop playback and the alarm", c.cmdStop)
	c.add("history", "/history [n]", "Recent ring log", c.cmdHistory)
	c.add("jobs", "/jobs", "Maintenance jobs", c.cmdJobs)
	c.cmds["start"] = c.cmds["help"]
}

func (c *Console) cmdHelp(_ context.Context, req *Request) error {
	req.Reply("🔔 School bell")
	for _, cmd := range c.list {
		req.Reply("%s  %s", cmd.usage, cmd.help)
	}
	return nil
}

func (c *Console) cmdStatus(_ context.Context, req *Request) error {
	if c.deps.Bells != nil {
		req.Reply("%s", c.deps.Bells.Next().Message)
	}
	if c.deps.Device != nil {
		st := c.deps.Device.Status()
		amp := "off"
		if st.AmplifierOn {
			amp = "on"
		}
		if st.Playing {
			req.Reply("Amplifier %s, playing %s", amp, st.Sound)
		} else {
			req.Reply("Amplifier %s, idle", amp)
		}
	}
	s := c.deps.Store
	weekend := "off"
	if s.SuppressWeekends() {
		weekend = "on"
	}
	req.Reply("Bells: %d/%d, weekend silence %s", s.Len(), s.MaxEntries(), weekend)
	if s.Unsaved() {
		req.Reply("Unsaved changes, /save to keep them")
	}
	return nil
}

func (c *Console) cmdSchedule(_ context.Context, req *Request) error {
	req.Reply("%s", strings.Join(c.deps.Store.FormattedSummary(), "\n"))
	return nil
}

func (c *Console) cmdAgenda(_ context.Context, req *Request) error {
	if c.deps.Agenda == nil {
		return errors.New("agenda unavailable")
	}
	a, ok := c.deps.Agenda.Agenda()
	if !ok {
		req.Reply("Agenda not built yet")
		return nil
	}
	req.Reply("Agenda for %s", a.Date.Format("Mon 2006-01-02"))
	if a.Suppressed {
		req.Reply("Bells are silenced today")
		return nil
	}
	if len(a.Actions) == 0 {
		req.Reply("Nothing scheduled")
		return nil
	}
	for _, act := range a.Actions {
		mark := "·"
		if act.Fired {
			mark = "✓"
		}
		req.Reply("%s %s %s", mark, act.FireAt.Format("15:04:05"), act.Kind)
	}
	return nil
}

func (c *Console) cmdAdd(_ context.Context, req *Request) error {
	if err := c.deps.Store.AddEntry(); err != nil {
		return err
	}
	req.Reply("Added a bell at 00:00 (%d total). Use /set to change it.", c.deps.Store.Len())
	return nil
}

func (c *Console) cmdDel(_ context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return errUsage
	}
	idx, err := parseIndex(req.Args[0])
	if err != nil {
		return err
	}
	if err := c.deps.Store.DeleteEntry(idx); err != nil {
		return err
	}
	req.Reply("Deleted bell %d", idx+1)
	return nil
}

func (c *Console) cmdSet(_ context.Context, req *Request) error {
	idx, m, err := parseSet(req.Args)
	if err != nil {
		return err
	}
	if err := c.deps.Store.MutateEntry(idx, m); err != nil {
		return err
	}
	e := c.deps.Store.Entries()[idx]
	state := "active"
	if !e.Active {
		state = "inactive"
	}
	req.Reply("Bell %d: %s, pre-bell %g min, %s. /save to keep it.", idx+1, e.Time, e.LeadMinutes, state)
	return nil
}

func (c *Console) cmdSave(_ context.Context, req *Request) error {
	if err := c.deps.Store.Save(); err != nil {
		return err
	}
	req.Reply("Schedule saved")
	return nil
}

func (c *Console) cmdWeekend(_ context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return errUsage
	}
	on, err := parseOnOff(req.Args[0])
	if err != nil {
		return err
	}
	c.deps.Store.SetSuppressWeekends(on)
	if on {
		req.Reply("Bells silenced on weekends. /save to keep it.")
	} else {
		req.Reply("Bells ring on weekends. /save to keep it.")
	}
	return nil
}

func (c *Console) playCmd(s device.Sound) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if c.deps.Bells == nil {
			return errors.New("device unavailable")
		}
		if err := c.deps.Bells.Ring(ctx, s, req.Actor()); err != nil {
			return err
		}
		req.Reply("Playing %s", s)
		return nil
	}
}

func (c *Console) cmdStop(ctx context.Context, req *Request) error {
	if c.deps.Bells == nil {
		return errors.New("device unavailable")
	}
	if err := c.deps.Bells.Silence(ctx, req.Actor()); err != nil {
		return err
	}
	req.Reply("Stopped")
	return nil
}

func (c *Console) cmdHistory(ctx context.Context, req *Request) error {
	if c.deps.Audit == nil {
		return errors.New("ring log is disabled")
	}
	limit := defaultHistory
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n < 1 || n > 100 {
			return errUsage
		}
		limit = n
	}
	recs, err := c.deps.Audit.RecentRings(ctx, limit)
	if err != nil {
		return fmt.Errorf("read ring log: %w", err)
	}
	if len(recs) == 0 {
		req.Reply("No rings recorded")
		return nil
	}
	for _, r := range recs {
		line := fmt.Sprintf("%s %s %s", r.At.Format("01-02 15:04:05"), r.Kind, r.Result)
		if r.Lag > 0 {
			line += " +" + r.Lag.Round(time.Second).String()
		}
		if r.Actor != "" {
			line += " by " + r.Actor
		}
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		req.Reply("%s", line)
	}
	return nil
}

func (c *Console) cmdJobs(_ context.Context, req *Request) error {
	if c.deps.Jobs == nil {
		return errors.New("jobs are disabled")
	}
	list := sortedJobs(c.deps.Jobs.Snapshot())
	if len(list) == 0 {
		req.Reply("No jobs")
		return nil
	}
	for _, j := range list {
		line := fmt.Sprintf("%s [%s] runs=%d", j.Name, j.Spec, j.Runs)
		if !j.Next.IsZero() {
			line += " next " + j.Next.Format("01-02 15:04:05")
		}
		if j.LastErr != nil {
			line += " last error: " + j.LastErr.Error()
		}
		req.Reply("%s", line)
	}
	return nil
}
