package remote

import (
	"fmt"
	"strconv"
	"strings"

	"schoolbell/internal/schedule"
)

// parseCommand splits "/set@bot 2 08:00" into ("set", ["2", "08:00"]).
// ok is false for text that is not a command.
func parseCommand(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// parseIndex converts a 1-based bell number to a store index.
func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bell number must be a positive integer, got %q", s)
	}
	return n - 1, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// parseSet reads "N [HH:MM] [lead] [on|off]" in any order after N. A token
// with ':' is the time, on/off is the state and a number is the lead.
func parseSet(args []string) (int, schedule.Mutation, error) {
	var m schedule.Mutation
	if len(args) < 2 {
		return 0, m, fmt.Errorf("usage: /set N [HH:MM] [lead_minutes] [on|off]")
	}
	idx, err := parseIndex(args[0])
	if err != nil {
		return 0, m, err
	}
	for _, a := range args[1:] {
		switch {
		case strings.Contains(a, ":"):
			if m.Time != nil {
				return 0, m, fmt.Errorf("time given twice")
			}
			t := a
			m.Time = &t
		default:
			if v, err := parseOnOff(a); err == nil {
				if m.Active != nil {
					return 0, m, fmt.Errorf("state given twice")
				}
				m.Active = &v
				continue
			}
			lead, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return 0, m, fmt.Errorf("unrecognised argument %q", a)
			}
			if m.LeadMinutes != nil {
				return 0, m, fmt.Errorf("lead given twice")
			}
			m.LeadMinutes = &lead
		}
	}
	return idx, m, nil
}
