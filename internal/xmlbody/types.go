package xmlbody

// Common XML tag names used in CalDAV
const (
	TagPropfind      = "propfind"
	TagProp          = "prop"
	TagMultistatus   = "multistatus"
	TagResponse      = "response"
	TagHref          = "href"
	TagPropstat      = "propstat"
	TagStatus        = "status"
	TagResourcetype  = "resourcetype"
	TagCollection    = "collection"
	TagCalendar      = "calendar"
	TagSyncToken     = "sync-token"
	TagSyncLevel     = "sync-level"
	TagMkcalendar    = "mkcalendar"
	TagSet           = "set"
	TagDisplayName   = "displayname"
	TagGetEtag       = "getetag"
	TagCalendarData  = "calendar-data"
	TagFilter        = "filter"
	TagCompFilter    = "comp-filter"
	TagTimeRange     = "time-range"
	TagComp          = "comp"
	TagSupportedComp = "supported-calendar-component-set"
	TagGetCTag       = "getctag"
)

// PropName identifies a requested or returned property by namespace
// and local tag.
type PropName struct {
	Namespace string
	Local     string
}

// Well-known property names requested by the harness.
var (
	PropResourcetype  = PropName{DAV, TagResourcetype}
	PropDisplayName   = PropName{DAV, TagDisplayName}
	PropGetEtag       = PropName{DAV, TagGetEtag}
	PropSyncToken     = PropName{DAV, TagSyncToken}
	PropCalendarData  = PropName{CalDAV, TagCalendarData}
	PropSupportedComp = PropName{CalDAV, TagSupportedComp}
	// PropGetCTag is the calendarserver.org collection tag, rotated by
	// servers whenever anything inside the collection changes.
	PropGetCTag = PropName{CalendarServer, TagGetCTag}
)
