package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Document is the full persisted state.
type Document struct {
	Entries          []Entry
	SuppressWeekends bool
}

func (d Document) Clone() Document {
	out := Document{SuppressWeekends: d.SuppressWeekends}
	if d.Entries != nil {
		out.Entries = append([]Entry(nil), d.Entries...)
	}
	return out
}

// fileDocument is the on-disk layout: three parallel arrays and the
// weekend flag.
type fileDocument struct {
	BellSchedule     []string  `json:"bell_schedule"`
	PreBellIntervals []float64 `json:"pre_bell_intervals"`
	PreBellActive    []bool    `json:"pre_bell_active"`
	NoWeekend        *bool     `json:"no_weekend,omitempty"`
}

func encodeDocument(d Document) ([]byte, error) {
	fd := fileDocument{
		BellSchedule:     make([]string, 0, len(d.Entries)),
		PreBellIntervals: make([]float64, 0, len(d.Entries)),
		PreBellActive:    make([]bool, 0, len(d.Entries)),
		NoWeekend:        &d.SuppressWeekends,
	}
	for _, e := range d.Entries {
		fd.BellSchedule = append(fd.BellSchedule, e.Time)
		fd.PreBellIntervals = append(fd.PreBellIntervals, e.LeadMinutes)
		fd.PreBellActive = append(fd.PreBellActive, e.Active)
	}
	b, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// decodeDocument parses b and repairs what it can. Parallel arrays of
// unequal length are aligned to bell_schedule (missing leads get
// defaultLead, missing flags get true, surplus values are dropped), and
// entries beyond maxEntries are cut. Each repair is described in notes.
func decodeDocument(b []byte, defaultLead float64, maxEntries int) (Document, []string, error) {
	var fd fileDocument
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&fd); err != nil {
		return Document{}, nil, err
	}

	var notes []string
	n := len(fd.BellSchedule)
	if len(fd.PreBellIntervals) != n {
		notes = append(notes, fmt.Sprintf("pre_bell_intervals has %d values for %d bells", len(fd.PreBellIntervals), n))
	}
	if len(fd.PreBellActive) != n {
		notes = append(notes, fmt.Sprintf("pre_bell_active has %d values for %d bells", len(fd.PreBellActive), n))
	}
	if maxEntries > 0 && n > maxEntries {
		notes = append(notes, fmt.Sprintf("%d bells exceed the maximum of %d; extra bells dropped", n, maxEntries))
		n = maxEntries
	}

	doc := Document{SuppressWeekends: true, Entries: make([]Entry, 0, n)}
	if fd.NoWeekend != nil {
		doc.SuppressWeekends = *fd.NoWeekend
	}
	for i := 0; i < n; i++ {
		e := Entry{Time: fd.BellSchedule[i], LeadMinutes: defaultLead, Active: true}
		if i < len(fd.PreBellIntervals) {
			if lead := fd.PreBellIntervals[i]; validLead(lead) == nil {
				e.LeadMinutes = lead
			} else {
				notes = append(notes, fmt.Sprintf("bell %d: negative lead replaced by default", i+1))
			}
		}
		if i < len(fd.PreBellActive) {
			e.Active = fd.PreBellActive[i]
		}
		doc.Entries = append(doc.Entries, e)
	}
	return doc, notes, nil
}

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
