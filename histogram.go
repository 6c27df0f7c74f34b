package tracefs

import (
	"fmt"
	"strings"
)

// KeyType selects the type suffix a histogram key is rendered with.
type KeyType int

const (
	KeyNormal KeyType = iota
	KeyHex
	KeySym
	KeySymOffset
	KeySyscall
	KeyExecname
	KeyLog2
	KeyUsecs
)

// KeyCounter is the sentinel start_type value marking a start-selection
// entry as a histogram value ("counter") rather than a key.
const KeyCounter KeyType = -1

var keyTypeSuffix = map[KeyType]string{
	KeyNormal:    "",
	KeyHex:       ".hex",
	KeySym:       ".sym",
	KeySymOffset: ".sym-offset",
	KeySyscall:   ".syscall",
	KeyExecname:  ".execname",
	KeyLog2:      ".log2",
	KeyUsecs:     ".usecs",
}

// suffix returns the key's wire-format suffix and whether t is a
// recognized type at all.
func (t KeyType) suffix() (string, bool) {
	s, ok := keyTypeSuffix[t]
	return s, ok
}

var keySuffixes = []string{".hex", ".sym-offset", ".sym", ".syscall", ".execname", ".log2", ".usecs"}

// stripKeySuffix removes a recognized key-type suffix from key, if
// present, so sort keys can be validated against the base key name
// regardless of the type it was added with.
func stripKeySuffix(key string) string {
	for _, s := range keySuffixes {
		if strings.HasSuffix(key, s) {
			return strings.TrimSuffix(key, s)
		}
	}
	return key
}

// SortDirection orders a sort key ascending or descending.
type SortDirection int

const (
	SortAscending SortDirection = iota
	SortDescending
)

func (d SortDirection) suffix() string {
	if d == SortDescending {
		return ".descending"
	}
	return ".ascending"
}

func stripDirectionSuffix(key string) string {
	if s := strings.TrimSuffix(key, ".ascending"); s != key {
		return s
	}
	if s := strings.TrimSuffix(key, ".descending"); s != key {
		return s
	}
	return key
}

// Verb selects which trigger command Serialize/Install renders.
type Verb int

const (
	VerbStart Verb = iota
	VerbPause
	VerbCont
	VerbClear
	VerbDestroy
)

const hitcount = "hitcount"

// HistogramDescriptor accumulates keys, values, a sort order, a size
// hint, a name, and a filter for a single bound event, then serializes
// to the kernel's "hist:keys=..." trigger command.
type HistogramDescriptor struct {
	provider EventProvider
	event    *Event

	keys   *stringList
	values *stringList
	sort   *stringList
	vars   *stringList // "name=expr" bindings spliced in by SyntheticDescriptor's start hist

	size    int
	name    string
	nameSet bool

	filter *FilterState

	cfg *descriptorConfig
}

// NewHistogramDescriptor resolves system/event through provider, binds
// it, and adds key as the primary key. system may be empty, in which
// case the first event named event is used.
func NewHistogramDescriptor(provider EventProvider, system, event, key string, keyType KeyType, opts ...Option) (*HistogramDescriptor, error) {
	const op = "NewHistogramDescriptor"
	if provider == nil {
		return nil, newError(op, InvalidArgument, "provider is required")
	}
	if event == "" {
		return nil, newError(op, InvalidArgument, "event name is required")
	}
	if key == "" {
		return nil, newError(op, InvalidArgument, "key is required")
	}

	ev, err := provider.FindEvent(system, event)
	if err != nil {
		return nil, err
	}

	provider.Acquire()
	h := &HistogramDescriptor{
		provider: provider,
		event:    ev,
		keys:     newStringList(),
		values:   newStringList(),
		sort:     newStringList(),
		vars:     newStringList(),
		filter:   &FilterState{},
		cfg:      newDescriptorConfig(opts),
	}

	if err := h.AddKey(key, keyType); err != nil {
		provider.Release()
		return nil, err
	}

	h.cfg.logger.Debugf("histogram allocated on %s/%s primary key=%s", ev.System, ev.Name, key)
	return h, nil
}

// newHistogramFromEvent builds a descriptor with no primary key yet,
// used internally by SyntheticDescriptor.GetStartHist which adds keys
// one at a time itself.
func newHistogramFromEvent(provider EventProvider, ev *Event, cfg *descriptorConfig) *HistogramDescriptor {
	provider.Acquire()
	return &HistogramDescriptor{
		provider: provider,
		event:    ev,
		keys:     newStringList(),
		values:   newStringList(),
		sort:     newStringList(),
		vars:     newStringList(),
		filter:   &FilterState{},
		cfg:      cfg,
	}
}

// addVar splices an extra "name=expr" assignment directly after the key
// segment, ahead of vals=/sort=/size. Used internally by
// SyntheticDescriptor.GetStartHist to carry start_vars bindings; not
// exposed on the public HistogramDescriptor API since plain histograms
// have no use for synthetic-event variable bindings.
func (h *HistogramDescriptor) addVar(binding string) {
	h.vars.add(binding)
}

// Close releases the descriptor's reference on its event provider.
func (h *HistogramDescriptor) Close() {
	if h.provider != nil {
		h.provider.Release()
		h.provider = nil
	}
}

// Event returns the bound event.
func (h *HistogramDescriptor) Event() *Event { return h.event }

// AddKey appends a key of the given type. For KeyNormal the name is
// added verbatim; otherwise it is suffixed per the type's wire format.
func (h *HistogramDescriptor) AddKey(name string, t KeyType) error {
	const op = "HistogramDescriptor.AddKey"
	if name == "" {
		return newError(op, InvalidArgument, "key name is required")
	}
	suffix, ok := t.suffix()
	if !ok {
		return newError(op, InvalidArgument, "unknown key type %d", t)
	}
	h.keys.add(name + suffix)
	h.cfg.logger.Debugf("added key %s%s", name, suffix)
	return nil
}

// AddValue appends a value field.
func (h *HistogramDescriptor) AddValue(name string) error {
	const op = "HistogramDescriptor.AddValue"
	if name == "" {
		return newError(op, InvalidArgument, "value name is required")
	}
	h.values.add(name)
	h.cfg.logger.Debugf("added value %s", name)
	return nil
}

// SetName assigns the histogram's shared-instance label. It can only be
// called once; a second call fails and leaves the name unchanged.
func (h *HistogramDescriptor) SetName(label string) error {
	const op = "HistogramDescriptor.SetName"
	if label == "" {
		return newError(op, InvalidArgument, "name is required")
	}
	if h.nameSet {
		return newError(op, InvalidArgument, "name already set to %q", h.name)
	}
	h.name = label
	h.nameSet = true
	return nil
}

// SetSize records the histogram's bucket-count hint. Set-once semantics
// are the caller's responsibility, per the design: calling SetSize again
// simply overwrites the previous hint.
func (h *HistogramDescriptor) SetSize(n int) error {
	const op = "HistogramDescriptor.SetSize"
	if n <= 0 {
		return newError(op, InvalidArgument, "size must be positive, got %d", n)
	}
	h.size = n
	return nil
}

func (h *HistogramDescriptor) validSortKey(key string) bool {
	if key == hitcount {
		return true
	}
	for _, k := range h.keys.slice() {
		if stripKeySuffix(k) == key {
			return true
		}
	}
	for _, v := range h.values.slice() {
		if v == key {
			return true
		}
	}
	return false
}

// AddSortKeys replaces the sort order wholesale. Every key is validated
// against the current keys/values/hitcount before anything commits; on
// any invalid entry the previous sort order is left untouched.
func (h *HistogramDescriptor) AddSortKeys(keys ...string) error {
	const op = "HistogramDescriptor.AddSortKeys"
	if len(keys) == 0 {
		return newError(op, InvalidArgument, "at least one sort key is required")
	}
	next := newStringList()
	for _, k := range keys {
		if k == "" {
			return newError(op, InvalidArgument, "empty sort key")
		}
		if !h.validSortKey(k) {
			return newError(op, NoSuchField, "sort key %q is not a key, value, or hitcount", k)
		}
		next.add(k)
	}
	h.sort = next
	h.cfg.logger.Debugf("sort keys set to %v", keys)
	return nil
}

// SetSortDirection locates sortKey in the current sort order (ignoring
// any direction suffix already present) and sets its direction. It is
// idempotent: setting a direction that already applies is a no-op.
func (h *HistogramDescriptor) SetSortDirection(sortKey string, dir SortDirection) error {
	const op = "HistogramDescriptor.SetSortDirection"
	items := h.sort.slice()
	idx := -1
	for i, s := range items {
		if stripDirectionSuffix(s) == sortKey {
			idx = i
			break
		}
	}
	if idx == -1 {
		return newError(op, InvalidArgument, "sort key %q is not in the sort order", sortKey)
	}
	base := stripDirectionSuffix(items[idx])
	want := base + dir.suffix()
	if items[idx] == want {
		return nil
	}
	items[idx] = want
	return nil
}

// AppendFilter delegates to the filter-expression builder against the
// bound event.
func (h *HistogramDescriptor) AppendFilter(kind FilterKind, field string, cmp Compare, val string) error {
	next, err := appendFilter("HistogramDescriptor.AppendFilter", h.filter, h.event, kind, field, cmp, val)
	if err != nil {
		return err
	}
	h.filter = next
	return nil
}

// Serialize renders the descriptor to the exact trigger command for
// verb. It requires at least one key.
func (h *HistogramDescriptor) Serialize(verb Verb) (string, error) {
	const op = "HistogramDescriptor.Serialize"
	if h.keys.len() == 0 {
		return "", newError(op, NotConfigured, "histogram has no keys")
	}

	var b strings.Builder
	if verb == VerbDestroy {
		b.WriteByte('!')
	}
	b.WriteString("hist:keys=")
	b.WriteString(strings.Join(h.keys.slice(), ","))

	for _, v := range h.vars.slice() {
		b.WriteByte(':')
		b.WriteString(v)
	}

	if h.values.len() > 0 {
		b.WriteString(":vals=")
		b.WriteString(strings.Join(h.values.slice(), ","))
	}
	if h.sort.len() > 0 {
		b.WriteString(":sort=")
		b.WriteString(strings.Join(h.sort.slice(), ","))
	}
	if h.size > 0 {
		fmt.Fprintf(&b, ":size=%d", h.size)
	}

	switch verb {
	case VerbPause:
		b.WriteString(":pause")
	case VerbCont:
		b.WriteString(":cont")
	case VerbClear:
		b.WriteString(":clear")
	}

	if h.nameSet {
		b.WriteString(":name=")
		b.WriteString(h.name)
	}

	if f := h.filter.String(); f != "" {
		b.WriteString(" if ")
		b.WriteString(f)
		b.WriteString(strings.Repeat(")", int(h.filter.parens)))
	}

	return b.String(), nil
}

// Install writes the serialized trigger line to the event's trigger
// file under instance, after verifying the event's hist file exists.
func (h *HistogramDescriptor) Install(fs TraceFS, instance string, verb Verb) error {
	const op = "HistogramDescriptor.Install"
	if !fs.EventFileExists(instance, h.event.System, h.event.Name, "hist") {
		return newError(op, NotConfigured, "%s/%s has no hist file", h.event.System, h.event.Name)
	}

	line, err := h.Serialize(verb)
	if err != nil {
		return err
	}

	if err := fs.EventFileAppend(instance, h.event.System, h.event.Name, "trigger", line); err != nil {
		h.cfg.logger.Errorf("install failed for %s/%s: %v", h.event.System, h.event.Name, err)
		return newError(op, IOFailure, "%v", err)
	}
	h.cfg.logger.Debugf("installed %q on %s/%s", line, h.event.System, h.event.Name)
	return nil
}

// Show renders the shell command that Install would execute, without
// touching the filesystem.
func (h *HistogramDescriptor) Show(fs TraceFS, instance string, verb Verb) (string, error) {
	const op = "HistogramDescriptor.Show"
	line, err := h.Serialize(verb)
	if err != nil {
		return "", err
	}
	path, err := fs.GetEventFile(instance, h.event.System, h.event.Name, "trigger")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("echo '%s' > %s\n", line, path), nil
}
