package xmlbody

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"
)

// Multistatus represents a parsed multistatus response body.
type Multistatus struct {
	// SyncToken is the top-level DAV:sync-token of a sync-collection
	// response. Absent for plain PROPFIND/REPORT responses.
	SyncToken mo.Option[string]
	Responses []Response
}

// Response represents a single response within a multistatus.
type Response struct {
	Href string
	// Status is the response-level status, used by sync-collection for
	// deleted resources. Mutually exclusive with PropStats.
	Status    mo.Option[string]
	PropStats []PropStat
}

// PropStat represents one propstat group in a response.
type PropStat struct {
	Status string
	Props  []Property
}

// Property is a returned property with its raw text and children.
type Property struct {
	Name     PropName
	Text     string
	Children []Property
}

// ParseMultistatus parses a multistatus response body.
func ParseMultistatus(body []byte) (*Multistatus, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus body: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty document")
	}
	if root.Tag != TagMultistatus {
		return nil, fmt.Errorf("invalid root tag: %s", root.Tag)
	}

	ms := &Multistatus{}
	if token := findChild(root, TagSyncToken); token != nil {
		ms.SyncToken = mo.Some(strings.TrimSpace(token.Text()))
	}

	for _, respElem := range findChildren(root, TagResponse) {
		resp := Response{}

		if hrefElem := findChild(respElem, TagHref); hrefElem != nil {
			resp.Href = strings.TrimSpace(hrefElem.Text())
		}

		// A response-level status (no propstat) is how sync-collection
		// reports deletions.
		if statusElem := findChild(respElem, TagStatus); statusElem != nil {
			resp.Status = mo.Some(strings.TrimSpace(statusElem.Text()))
		}

		for _, propstatElem := range findChildren(respElem, TagPropstat) {
			propstat := PropStat{}

			if propElem := findChild(propstatElem, TagProp); propElem != nil {
				for _, p := range propElem.ChildElements() {
					propstat.Props = append(propstat.Props, propertyFromElement(p))
				}
			}
			if statusElem := findChild(propstatElem, TagStatus); statusElem != nil {
				propstat.Status = strings.TrimSpace(statusElem.Text())
			}

			resp.PropStats = append(resp.PropStats, propstat)
		}

		ms.Responses = append(ms.Responses, resp)
	}

	return ms, nil
}

func propertyFromElement(elem *etree.Element) Property {
	p := Property{
		Name: PropName{Namespace: resolveSpace(elem), Local: elem.Tag},
		Text: elem.Text(),
	}
	for _, child := range elem.ChildElements() {
		p.Children = append(p.Children, propertyFromElement(child))
	}
	return p
}

// resolveSpace maps an element's prefix to its namespace URI. Servers
// that declare a URI directly as the prefix are handled too.
func resolveSpace(elem *etree.Element) string {
	if elem.Space == "" {
		return DAV
	}
	if ns := elem.NamespaceURI(); ns != "" {
		return ns
	}
	return elem.Space
}

// ParseStatusCode extracts the numeric code from an HTTP status line
// such as "HTTP/1.1 404 Not Found".
func ParseStatusCode(status string) (int, error) {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed status line %q", status)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status line %q: %w", status, err)
	}
	return code, nil
}

// FindByHref returns the response whose href matches exactly, or the
// one whose path component matches when the server returned absolute
// URLs.
func (m *Multistatus) FindByHref(href string) mo.Option[Response] {
	for _, resp := range m.Responses {
		if resp.Href == href || strings.HasSuffix(resp.Href, href) {
			return mo.Some(resp)
		}
	}
	return mo.None[Response]()
}

// PropText returns the text of the named property from a 2xx propstat.
func (r *Response) PropText(name PropName) mo.Option[string] {
	for _, ps := range r.PropStats {
		code, err := ParseStatusCode(ps.Status)
		if err != nil || code < 200 || code > 299 {
			continue
		}
		for _, p := range ps.Props {
			if p.Name.Local == name.Local {
				return mo.Some(p.Text)
			}
		}
	}
	return mo.None[string]()
}

// Etag returns the DAV:getetag value if present.
func (r *Response) Etag() mo.Option[string] {
	return r.PropText(PropGetEtag)
}

// CalendarData returns the CALDAV:calendar-data payload if present.
func (r *Response) CalendarData() mo.Option[string] {
	return r.PropText(PropCalendarData)
}

// IsCalendar reports whether the resourcetype marks this resource as a
// calendar collection.
func (r *Response) IsCalendar() bool {
	for _, ps := range r.PropStats {
		for _, p := range ps.Props {
			if p.Name.Local != TagResourcetype {
				continue
			}
			for _, child := range p.Children {
				if child.Name.Local == TagCalendar {
					return true
				}
			}
		}
	}
	return false
}

// IsCollection reports whether the resourcetype marks this resource as
// a collection of any kind.
func (r *Response) IsCollection() bool {
	for _, ps := range r.PropStats {
		for _, p := range ps.Props {
			if p.Name.Local != TagResourcetype {
				continue
			}
			for _, child := range p.Children {
				if child.Name.Local == TagCollection {
					return true
				}
			}
		}
	}
	return false
}
