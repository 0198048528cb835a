package forum

// QuoteMarker is one inline quote extracted from a reply body: the
// quoted reply's source-native id and the display name that was
// referenced. Extraction is site-specific; adapters produce zero or
// more markers per body.
type QuoteMarker struct {
	NativeID   string
	QuotedUser string
}

// RefIndex maps source-native reply ids to minted ids within a single
// scrape run. It is built incrementally as replies are discovered and
// is never persisted or shared across runs, so quotes pointing at
// replies from an earlier run stay unresolved.
type RefIndex struct {
	ids map[string]string
}

func NewRefIndex() *RefIndex {
	return &RefIndex{ids: make(map[string]string)}
}

// Add records the minted id for a native reply id.
func (r *RefIndex) Add(nativeID, mintedID string) {
	if nativeID == "" {
		return
	}
	r.ids[nativeID] = mintedID
}

// Resolve returns the minted id for the first marker, or "" when there
// are no markers or the quoted reply has not been seen in this run.
// Multiple markers collapse to the first one found.
func (r *RefIndex) Resolve(markers []QuoteMarker) string {
	if len(markers) == 0 {
		return ""
	}
	return r.ids[markers[0].NativeID]
}

// QuotedUsers collects the display names from a set of markers,
// independent of id resolution.
func QuotedUsers(markers []QuoteMarker) []string {
	users := make([]string, 0, len(markers))
	for _, m := range markers {
		if m.QuotedUser != "" {
			users = append(users, m.QuotedUser)
		}
	}
	return users
}

func (r *RefIndex) Len() int {
	return len(r.ids)
}
