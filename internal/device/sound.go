package device

import "fmt"

type Sound int

const (
	Prebell Sound = iota
	Bell
	Alarm
)

func (s Sound) String() string {
	switch s {
	case Prebell:
		return "prebell"
	case Bell:
		return "bell"
	case Alarm:
		return "alarm"
	default:
		return fmt.Sprintf("sound(%d)", int(s))
	}
}

// prefix is the leading character of the file name that selects s.
func (s Sound) prefix() string {
	switch s {
	case Bell:
		return "1"
	case Prebell:
		return "2"
	case Alarm:
		return "0"
	default:
		return ""
	}
}

var sounds = []Sound{Prebell, Bell, Alarm}

func ParseSound(raw string) (Sound, error) {
	for _, s := range sounds {
		if s.String() == raw {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown sound %q", raw)
}
