package xmlbody

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
)

// utcFormat is the iCalendar UTC date-time form used in time-range filters.
const utcFormat = "20060102T150405Z"

// encodeDoc serializes a request document. Output is byte-stable for
// identical input: no indentation, fixed declaration, fixed attribute
// order as created.
func encodeDoc(doc *etree.Document) ([]byte, error) {
	doc.WriteSettings.CanonicalEndTags = false
	body, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request body: %w", err)
	}
	return body, nil
}

// PropfindRequest represents a PROPFIND request body
type PropfindRequest struct {
	Props []PropName
}

// ToXML converts a PropfindRequest to an XML document
func (r *PropfindRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := createRoot(doc, DAV, TagPropfind)
	declareNamespaces(doc, DAV, CalDAV, CalendarServer)

	prop := createChild(root, DAV, TagProp)
	for _, name := range r.Props {
		createChild(prop, name.Namespace, name.Local)
	}

	return doc
}

// Encode serializes the request body
func (r *PropfindRequest) Encode() ([]byte, error) {
	return encodeDoc(r.ToXML())
}

// CalendarQueryRequest represents a calendar-query REPORT request body
type CalendarQueryRequest struct {
	Props     []PropName
	Component string // VEVENT, VTODO...
	Start     time.Time
	End       time.Time
}

// ToXML converts a CalendarQueryRequest to an XML document
func (r *CalendarQueryRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := createRoot(doc, CalDAV, "calendar-query")
	declareNamespaces(doc, DAV, CalDAV)

	prop := createChild(root, DAV, TagProp)
	for _, name := range r.Props {
		createChild(prop, name.Namespace, name.Local)
	}

	filter := createChild(root, CalDAV, TagFilter)
	outer := createChild(filter, CalDAV, TagCompFilter)
	outer.CreateAttr("name", "VCALENDAR")
	inner := createChild(outer, CalDAV, TagCompFilter)
	inner.CreateAttr("name", r.Component)
	if !r.Start.IsZero() || !r.End.IsZero() {
		tr := createChild(inner, CalDAV, TagTimeRange)
		if !r.Start.IsZero() {
			tr.CreateAttr("start", r.Start.UTC().Format(utcFormat))
		}
		if !r.End.IsZero() {
			tr.CreateAttr("end", r.End.UTC().Format(utcFormat))
		}
	}

	return doc
}

// Encode serializes the request body
func (r *CalendarQueryRequest) Encode() ([]byte, error) {
	return encodeDoc(r.ToXML())
}

// CalendarMultigetRequest represents a calendar-multiget REPORT request body
type CalendarMultigetRequest struct {
	Props []PropName
	Hrefs []string
}

// ToXML converts a CalendarMultigetRequest to an XML document
func (r *CalendarMultigetRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := createRoot(doc, CalDAV, "calendar-multiget")
	declareNamespaces(doc, DAV, CalDAV)

	prop := createChild(root, DAV, TagProp)
	for _, name := range r.Props {
		createChild(prop, name.Namespace, name.Local)
	}

	for _, href := range r.Hrefs {
		h := createChild(root, DAV, TagHref)
		h.SetText(href)
	}

	return doc
}

// Encode serializes the request body
func (r *CalendarMultigetRequest) Encode() ([]byte, error) {
	return encodeDoc(r.ToXML())
}

// SyncCollectionRequest represents a sync-collection REPORT request body
type SyncCollectionRequest struct {
	SyncToken string // empty for an initial sync
	SyncLevel string // "1" or "infinite"
	Props     []PropName
}

// ToXML converts a SyncCollectionRequest to an XML document
func (r *SyncCollectionRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := createRoot(doc, DAV, "sync-collection")
	declareNamespaces(doc, DAV)

	token := createChild(root, DAV, TagSyncToken)
	token.SetText(r.SyncToken)

	level := createChild(root, DAV, TagSyncLevel)
	if r.SyncLevel == "" {
		level.SetText("1")
	} else {
		level.SetText(r.SyncLevel)
	}

	if len(r.Props) > 0 {
		prop := createChild(root, DAV, TagProp)
		for _, name := range r.Props {
			createChild(prop, name.Namespace, name.Local)
		}
	}

	return doc
}

// Encode serializes the request body
func (r *SyncCollectionRequest) Encode() ([]byte, error) {
	return encodeDoc(r.ToXML())
}

// MkcalendarRequest represents a MKCALENDAR request body
type MkcalendarRequest struct {
	DisplayName string
	Components  []string // VEVENT, VTODO...
}

// ToXML converts a MkcalendarRequest to an XML document
func (r *MkcalendarRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := createRoot(doc, CalDAV, TagMkcalendar)
	declareNamespaces(doc, DAV, CalDAV)

	if r.DisplayName == "" && len(r.Components) == 0 {
		return doc
	}

	set := createChild(root, DAV, TagSet)
	prop := createChild(set, DAV, TagProp)

	if r.DisplayName != "" {
		name := createChild(prop, DAV, TagDisplayName)
		name.SetText(r.DisplayName)
	}

	if len(r.Components) > 0 {
		compSet := createChild(prop, CalDAV, TagSupportedComp)
		for _, name := range r.Components {
			comp := createChild(compSet, CalDAV, TagComp)
			comp.CreateAttr("name", name)
		}
	}

	return doc
}

// Encode serializes the request body
func (r *MkcalendarRequest) Encode() ([]byte, error) {
	return encodeDoc(r.ToXML())
}
