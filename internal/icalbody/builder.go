// Package icalbody builds and parses the iCalendar payloads the probe
// sends to and receives from the server under test.
package icalbody

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const prodID = "-//davprobe//conformance probe//EN"

// ObjectSpec describes a minimal calendar object to build.
type ObjectSpec struct {
	UID       string
	Component string // ical.CompEvent or ical.CompToDo
	Summary   string
	Start     time.Time
	End       time.Time
	Sequence  int
}

// Build produces a minimal valid iCalendar object for the spec:
// balanced BEGIN/END, VERSION/PRODID on the calendar, and the
// required properties for the component type.
func Build(spec ObjectSpec) ([]byte, error) {
	if spec.UID == "" {
		return nil, fmt.Errorf("object UID is required")
	}
	comp := spec.Component
	if comp == "" {
		comp = ical.CompEvent
	}
	if comp != ical.CompEvent && comp != ical.CompToDo {
		return nil, fmt.Errorf("unsupported component type %q", comp)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	child := ical.NewComponent(comp)
	child.Props.SetText(ical.PropUID, spec.UID)
	child.Props.SetDateTime(ical.PropDateTimeStamp, spec.Start.UTC())
	if spec.Summary != "" {
		child.Props.SetText(ical.PropSummary, spec.Summary)
	}
	if !spec.Start.IsZero() {
		child.Props.SetDateTime(ical.PropDateTimeStart, spec.Start.UTC())
	}
	if comp == ical.CompEvent && !spec.End.IsZero() {
		child.Props.SetDateTime(ical.PropDateTimeEnd, spec.End.UTC())
	}
	if spec.Sequence > 0 {
		child.Props.SetText(ical.PropSequence, fmt.Sprintf("%d", spec.Sequence))
	}

	cal.Children = append(cal.Children, child)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar object: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes iCalendar data into a calendar.
func Parse(data []byte) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse iCalendar data: %w", err)
	}
	return cal, nil
}

// UID returns the UID of the first VEVENT or VTODO in the data.
func UID(data []byte) (string, error) {
	cal, err := Parse(data)
	if err != nil {
		return "", err
	}
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent && child.Name != ical.CompToDo {
			continue
		}
		prop := child.Props.Get(ical.PropUID)
		if prop == nil {
			return "", fmt.Errorf("%s has no UID", child.Name)
		}
		return prop.Value, nil
	}
	return "", fmt.Errorf("no VEVENT or VTODO component found")
}

// Balanced reports whether every BEGIN line in the raw data has a
// matching END line for the same component, in proper nesting order.
func Balanced(data []byte) bool {
	var stack []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "BEGIN:"):
			stack = append(stack, strings.TrimPrefix(line, "BEGIN:"))
		case strings.HasPrefix(line, "END:"):
			name := strings.TrimPrefix(line, "END:")
			if len(stack) == 0 || stack[len(stack)-1] != name {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}
