package gesture

// FocusFunc reports the focused application id, if known.
type FocusFunc func() (string, bool)

// IgnoreFilter answers whether the focused application is excluded from
// gesture processing and click rewriting.
type IgnoreFilter struct {
	apps  map[string]struct{}
	focus FocusFunc
}

// NewIgnoreFilter builds a filter over apps. focus may be nil, in which case
// no application is ever considered focused.
func NewIgnoreFilter(apps []string, focus FocusFunc) *IgnoreFilter {
	f := &IgnoreFilter{focus: focus}
	f.Update(apps)
	return f
}

// Update replaces the ignored set.
func (f *IgnoreFilter) Update(apps []string) {
	set := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		set[app] = struct{}{}
	}
	f.apps = set
}

// IsIgnored reports whether app is ignored. A missing app is never ignored.
func (f *IgnoreFilter) IsIgnored(app string, ok bool) bool {
	if f == nil || !ok {
		return false
	}
	_, ignored := f.apps[app]
	return ignored
}

// FocusedApp returns the focused application id as seen by the filter.
func (f *IgnoreFilter) FocusedApp() (string, bool) {
	if f == nil || f.focus == nil {
		return "", false
	}
	return f.focus()
}

// FocusedIgnored reports whether the currently focused application is ignored.
func (f *IgnoreFilter) FocusedIgnored() bool {
	return f.IsIgnored(f.FocusedApp())
}

// Len returns the number of ignored applications.
func (f *IgnoreFilter) Len() int {
	return len(f.apps)
}
