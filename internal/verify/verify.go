// Package verify checks server responses against the shapes the
// CalDAV specs require. Every check returns a Result value; an
// expected protocol failure (say, a 412) is verified the same way as
// a success, never by catching an error.
package verify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/davprobe/davprobe/internal/httpclient"
	"github.com/davprobe/davprobe/internal/icalbody"
	"github.com/davprobe/davprobe/internal/model"
	"github.com/davprobe/davprobe/internal/xmlbody"
)

// Mismatch is a single failed assertion with the specific expected
// and actual values, so failures stay actionable.
type Mismatch struct {
	Field    string
	Expected string
	Actual   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", m.Field, m.Expected, m.Actual)
}

// Result is the outcome of a validation: ok, or a list of mismatches.
type Result struct {
	Mismatches []Mismatch
}

// OK returns a passing result.
func OK() Result {
	return Result{}
}

// Passed reports whether no assertion failed.
func (r Result) Passed() bool {
	return len(r.Mismatches) == 0
}

// Merge combines two results.
func (r Result) Merge(other Result) Result {
	return Result{Mismatches: append(append([]Mismatch{}, r.Mismatches...), other.Mismatches...)}
}

// Detail renders all mismatches as one diagnostic string.
func (r Result) Detail() string {
	parts := make([]string, len(r.Mismatches))
	for i, m := range r.Mismatches {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}

// Fail builds a Result holding a single mismatch.
func Fail(field, expected, actual string) Result {
	return Result{Mismatches: []Mismatch{{Field: field, Expected: expected, Actual: actual}}}
}

func fail(field, expected, actual string) Result {
	return Fail(field, expected, actual)
}

// Status asserts that the response status is one of the wanted codes.
func Status(resp *httpclient.WireResponse, want ...int) Result {
	for _, code := range want {
		if resp.StatusCode == code {
			return OK()
		}
	}
	wanted := make([]string, len(want))
	for i, code := range want {
		wanted[i] = fmt.Sprintf("%d", code)
	}
	return fail("status", "one of ["+strings.Join(wanted, " ")+"]", fmt.Sprintf("%d", resp.StatusCode))
}

// etagPattern matches a quoted entity tag, optionally weak (RFC 7232).
var etagPattern = regexp.MustCompile(`^(W/)?"[^"]+"$`)

// Etag asserts that the value is a non-empty quoted entity tag.
func Etag(etag string) Result {
	if etag == "" {
		return fail("getetag", "a quoted entity tag", "absent")
	}
	if !etagPattern.MatchString(etag) {
		return fail("getetag", "a quoted entity tag", fmt.Sprintf("%q", etag))
	}
	return OK()
}

// CalendarData asserts the payload is parseable iCalendar with
// balanced components, carrying the wanted UID verbatim.
func CalendarData(data string, wantUID string) Result {
	if strings.TrimSpace(data) == "" {
		return fail("calendar-data", "an iCalendar payload", "empty")
	}
	if !icalbody.Balanced([]byte(data)) {
		return fail("calendar-data", "balanced BEGIN/END components", "unbalanced payload")
	}
	uid, err := icalbody.UID([]byte(data))
	if err != nil {
		return fail("calendar-data", "parseable iCalendar", err.Error())
	}
	if wantUID != "" && uid != wantUID {
		return fail("calendar-data UID", wantUID, uid)
	}
	return OK()
}

// Shape describes what a multistatus response must contain.
type Shape struct {
	// Require lists hrefs that must each appear exactly once.
	Require []string
	// AllowAbsent lists hrefs that may appear but need not.
	AllowAbsent []string
	// ExactCount, when >= 0, pins the total number of responses.
	// Use -1 to leave the count unchecked.
	ExactCount int
	// Props lists properties each required href must carry in a 2xx
	// propstat. Unknown extra properties are ignored.
	Props []xmlbody.PropName
}

// Multistatus asserts the response matches the shape.
func Multistatus(ms *xmlbody.Multistatus, shape Shape) Result {
	result := OK()

	if shape.ExactCount >= 0 && len(ms.Responses) != shape.ExactCount {
		result = result.Merge(fail("response count",
			fmt.Sprintf("%d", shape.ExactCount),
			fmt.Sprintf("%d", len(ms.Responses))))
	}

	counts := make(map[string]int)
	for _, resp := range ms.Responses {
		for _, href := range append(append([]string{}, shape.Require...), shape.AllowAbsent...) {
			if resp.Href == href || strings.HasSuffix(resp.Href, href) {
				counts[href]++
			}
		}
	}

	for _, href := range shape.Require {
		switch counts[href] {
		case 1:
			// present exactly once, check its props
			resp, _ := ms.FindByHref(href).Get()
			for _, name := range shape.Props {
				if resp.PropText(name).IsAbsent() {
					result = result.Merge(fail(
						fmt.Sprintf("%s %s", href, name.Local),
						"present with 2xx status", "absent"))
				}
			}
		case 0:
			result = result.Merge(fail(href, "exactly one response", "absent"))
		default:
			result = result.Merge(fail(href, "exactly one response",
				fmt.Sprintf("%d responses", counts[href])))
		}
	}

	return result
}

// SyncDelta asserts a sync-collection response reports exactly the
// expected changes and deletions relative to the prior state, and
// that a fresh token was issued when changes exist.
func SyncDelta(ms *xmlbody.Multistatus, prior model.SyncState, wantChanged, wantDeleted []string) Result {
	result := OK()

	var gotChanged, gotDeleted []string
	for _, resp := range ms.Responses {
		if status, ok := resp.Status.Get(); ok {
			code, err := xmlbody.ParseStatusCode(status)
			if err != nil {
				result = result.Merge(fail(resp.Href+" status", "a valid status line", status))
				continue
			}
			if code == 404 || code == 410 {
				gotDeleted = append(gotDeleted, resp.Href)
				continue
			}
		}
		gotChanged = append(gotChanged, resp.Href)
	}

	result = result.Merge(compareHrefSets("changed set", wantChanged, gotChanged))
	result = result.Merge(compareHrefSets("deleted set", wantDeleted, gotDeleted))

	token, ok := ms.SyncToken.Get()
	if !ok || token == "" {
		return result.Merge(fail("sync-token", "a fresh token", "absent"))
	}
	if (len(wantChanged) > 0 || len(wantDeleted) > 0) && token == prior.Token {
		result = result.Merge(fail("sync-token", "a token different from "+prior.Token, token))
	}

	return result
}

// compareHrefSets matches expected hrefs against reported ones by
// suffix, so servers returning absolute URLs still compare equal.
func compareHrefSets(field string, want, got []string) Result {
	matched := make([]bool, len(got))
	var missing []string
	for _, wantHref := range want {
		found := false
		for i, gotHref := range got {
			if matched[i] {
				continue
			}
			if gotHref == wantHref || strings.HasSuffix(gotHref, wantHref) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, wantHref)
		}
	}
	var extra []string
	for i, gotHref := range got {
		if !matched[i] {
			extra = append(extra, gotHref)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return OK()
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return fail(field,
		fmt.Sprintf("exactly %v", want),
		fmt.Sprintf("missing %v, unexpected %v", missing, extra))
}
