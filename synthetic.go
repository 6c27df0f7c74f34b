package tracefs

import (
	"fmt"
	"strings"
)

// Calc identifies the arithmetic relating a start-event field to an
// end-event field in a synthetic compare field, mirroring the C
// library's TRACEFS_SYNTH_* calculation constants.
type Calc int

const (
	CalcDeltaEnd Calc = iota
	CalcDeltaStart
	CalcAdd
)

// Handler selects which synthetic-event trigger a set of actions is
// attached to: on every match, on a new maximum of the tracked variable,
// or on any change to it.
type Handler int

const (
	HandlerOnMatch Handler = iota
	HandlerOnMax
	HandlerOnChange
)

func (h Handler) keyword() string {
	switch h {
	case HandlerOnMax:
		return "onmax"
	case HandlerOnChange:
		return "onchange"
	default:
		return "onmatch"
	}
}

// ActionKind identifies what a handler does when it fires.
type ActionKind int

const (
	ActionTrace ActionKind = iota
	ActionSnapshot
	ActionSave
)

// action is one onmatch/onmax/onchange clause: a handler, the variable
// it watches (empty for onmatch), the action it performs, and, for
// ActionTrace, the synthetic event name plus its argument expressions.
type action struct {
	handler Handler
	varName string // the max/changed variable onmax/onchange watches

	kind ActionKind
	args []string // ActionTrace: "synthname,arg1,arg2,..."; ActionSave: field list
}

// SyntheticDescriptor builds a two-event (start/end) synthetic-event
// trigger pair: a start histogram that stashes variables keyed on a
// shared field, an end histogram that matches on the same key and fires
// one or more actions, and a synthetic_events declaration binding the
// fields those actions pass along.
//
// A descriptor can also be built start-only (NewSyntheticStartOnly) when
// only the start side's variables are of interest and no end event,
// match fields, or actions are configured; BindEnd promotes it to a full
// descriptor later.
type SyntheticDescriptor struct {
	provider EventProvider

	name string

	startEvent *Event
	endEvent   *Event // nil until BindEnd, for a start-only descriptor

	startKeys *stringList // fields from the start event used as match keys
	endKeys   *stringList // corresponding fields from the end event

	// startSelection/startType hold fields pulled from the start event
	// that are not match keys: either additional histogram keys
	// (start_type[i] is a concrete KeyType) or tracked counters
	// (start_type[i] == KeyCounter).
	startSelection *stringList
	startType      []KeyType

	vars   *stringList // synthetic event field declarations, "type name;"
	varSrc map[string]string // var name -> source expression (checked by verifyEndVar)

	startVars *stringList // start-hist "name=expr" bindings
	endVars   *stringList // end-hist "name=expr" bindings

	actions []action

	startFilter *FilterState
	endFilter   *FilterState

	namer *argNamer

	complete bool // true once Complete() or a completing constructor ran

	cfg *descriptorConfig
}

// NewSyntheticDescriptor resolves startEvent and endEvent through
// provider and binds them both, ready for AddMatchField/AddCompareField
// calls.
func NewSyntheticDescriptor(provider EventProvider, name, startSystem, startEvent, endSystem, endEvent string, opts ...Option) (*SyntheticDescriptor, error) {
	const op = "NewSyntheticDescriptor"
	if provider == nil {
		return nil, newError(op, InvalidArgument, "provider is required")
	}
	if name == "" {
		return nil, newError(op, InvalidArgument, "synthetic event name is required")
	}

	sev, err := provider.FindEvent(startSystem, startEvent)
	if err != nil {
		return nil, err
	}
	eev, err := provider.FindEvent(endSystem, endEvent)
	if err != nil {
		return nil, err
	}

	provider.Acquire()
	provider.Acquire()
	cfg := newDescriptorConfig(opts)
	s := &SyntheticDescriptor{
		provider:       provider,
		name:           name,
		startEvent:     sev,
		endEvent:       eev,
		startKeys:      newStringList(),
		endKeys:        newStringList(),
		startSelection: newStringList(),
		vars:           newStringList(),
		varSrc:         make(map[string]string),
		startVars:      newStringList(),
		endVars:        newStringList(),
		startFilter:    &FilterState{},
		endFilter:      &FilterState{},
		namer:          newArgNamer(cfg.entropy),
		cfg:            cfg,
	}
	s.cfg.logger.Debugf("synthetic %q allocated on %s/%s -> %s/%s", name, sev.System, sev.Name, eev.System, eev.Name)
	return s, nil
}

// NewSyntheticStartOnly resolves only the start event, for callers that
// want to accumulate start-side selections and later decide the end
// event with BindEnd.
func NewSyntheticStartOnly(provider EventProvider, name, startSystem, startEvent string, opts ...Option) (*SyntheticDescriptor, error) {
	const op = "NewSyntheticStartOnly"
	if provider == nil {
		return nil, newError(op, InvalidArgument, "provider is required")
	}
	if name == "" {
		return nil, newError(op, InvalidArgument, "synthetic event name is required")
	}
	sev, err := provider.FindEvent(startSystem, startEvent)
	if err != nil {
		return nil, err
	}
	provider.Acquire()
	cfg := newDescriptorConfig(opts)
	return &SyntheticDescriptor{
		provider:       provider,
		name:           name,
		startEvent:     sev,
		startKeys:      newStringList(),
		endKeys:        newStringList(),
		startSelection: newStringList(),
		vars:           newStringList(),
		varSrc:         make(map[string]string),
		startVars:      newStringList(),
		endVars:        newStringList(),
		startFilter:    &FilterState{},
		endFilter:      &FilterState{},
		namer:          newArgNamer(cfg.entropy),
		cfg:            cfg,
	}, nil
}

// BindEnd completes a start-only descriptor by resolving and binding an
// end event. It fails if an end event is already bound.
func (s *SyntheticDescriptor) BindEnd(endSystem, endEvent string) error {
	const op = "SyntheticDescriptor.BindEnd"
	if s.endEvent != nil {
		return newError(op, InvalidArgument, "end event already bound to %s/%s", s.endEvent.System, s.endEvent.Name)
	}
	eev, err := s.provider.FindEvent(endSystem, endEvent)
	if err != nil {
		return err
	}
	s.provider.Acquire()
	s.endEvent = eev
	s.cfg.logger.Debugf("synthetic %q end bound to %s/%s", s.name, eev.System, eev.Name)
	return nil
}

// Close releases the descriptor's references on its event provider: one
// for the start event, and one more if an end event is bound.
func (s *SyntheticDescriptor) Close() {
	if s.provider == nil {
		return
	}
	s.provider.Release()
	if s.endEvent != nil {
		s.provider.Release()
	}
	s.provider = nil
}

func (s *SyntheticDescriptor) requireEnd(op string) error {
	if s.endEvent == nil {
		return newError(op, NotConfigured, "no end event bound")
	}
	return nil
}

// AddMatchField declares that startField (on the start event) and
// endField (on the end event) must hold equal values for the end
// histogram to fire for a given start, and registers name as that
// field's synthetic argument. The two fields must be field-compatible.
func (s *SyntheticDescriptor) AddMatchField(startField, endField, name string) error {
	const op = "SyntheticDescriptor.AddMatchField"
	if err := s.requireEnd(op); err != nil {
		return err
	}
	sf, ok := s.startEvent.Field(startField)
	if !ok {
		return newError(op, NoSuchField, "start event has no field %q", startField)
	}
	ef, ok := s.endEvent.Field(endField)
	if !ok {
		return newError(op, NoSuchField, "end event has no field %q", endField)
	}
	if !sf.CompatibleWith(ef) {
		return newError(op, IncompatibleFields, "%q and %q are not compatible", startField, endField)
	}

	decl, err := synthFieldDecl(sf, name)
	if err != nil {
		return err
	}

	s.startKeys.add(startField)
	s.endKeys.add(endField)
	s.vars.add(decl)
	s.varSrc[name] = endField
	s.endVars.add(fmt.Sprintf("%s=%s", name, endField))
	return nil
}

// AddCompareField declares a synthetic field computed from startField
// and endField (on their respective events) via calc, bound to name. A
// fresh argument is minted to carry startField's value from the start
// hist to the end hist, where it is combined with endField per calc.
// Both fields must be present, scalar, and compatible.
func (s *SyntheticDescriptor) AddCompareField(startField, endField string, calc Calc, name string) error {
	const op = "SyntheticDescriptor.AddCompareField"
	if err := s.requireEnd(op); err != nil {
		return err
	}
	sf, ok := s.startEvent.Field(startField)
	if !ok {
		return newError(op, NoSuchField, "start event has no field %q", startField)
	}
	ef, ok := s.endEvent.Field(endField)
	if !ok {
		return newError(op, NoSuchField, "end event has no field %q", endField)
	}
	if !sf.CompatibleWith(ef) {
		return newError(op, IncompatibleFields, "%q and %q are not compatible", startField, endField)
	}
	if sf.IsArray || sf.IsDynamic || ef.IsArray || ef.IsDynamic {
		return newError(op, InvalidArgument, "compare fields must be scalar")
	}

	decl, err := synthFieldDecl(sf, name)
	if err != nil {
		return err
	}

	arg := s.namer.next()
	s.startVars.add(fmt.Sprintf("%s=%s", arg, startField))

	var expr string
	switch calc {
	case CalcDeltaStart:
		expr = fmt.Sprintf("$%s-%s", arg, endField)
	case CalcAdd:
		expr = fmt.Sprintf("%s+$%s", endField, arg)
	default: // CalcDeltaEnd
		expr = fmt.Sprintf("%s-$%s", endField, arg)
	}

	s.vars.add(decl)
	s.varSrc[name] = expr
	s.endVars.add(fmt.Sprintf("%s=%s", name, expr))
	return nil
}

// AddStartField selects a field from the start event as a histogram key
// (t != KeyCounter) or a tracked counter (t == KeyCounter), rolled back
// wholesale if an error is returned.
func (s *SyntheticDescriptor) AddStartField(field string, t KeyType) error {
	const op = "SyntheticDescriptor.AddStartField"
	if _, ok := s.startEvent.Field(field); !ok {
		return newError(op, NoSuchField, "start event has no field %q", field)
	}
	if t != KeyCounter {
		if _, ok := t.suffix(); !ok {
			return newError(op, InvalidArgument, "unknown key type %d", t)
		}
	}
	s.startSelection.add(field)
	s.startType = append(s.startType, t)
	return nil
}

// AddEndField declares a field copied straight from the end event into
// the synthetic event, bound to name, with no corresponding start field.
func (s *SyntheticDescriptor) AddEndField(endField, name string) error {
	const op = "SyntheticDescriptor.AddEndField"
	if err := s.requireEnd(op); err != nil {
		return err
	}
	ef, ok := s.endEvent.Field(endField)
	if !ok {
		return newError(op, NoSuchField, "end event has no field %q", endField)
	}
	decl, err := synthFieldDecl(ef, name)
	if err != nil {
		return err
	}
	s.vars.add(decl)
	s.varSrc[name] = endField
	s.endVars.add(fmt.Sprintf("%s=%s", name, endField))
	return nil
}

// AppendStartFilter extends the start-event filter expression.
func (s *SyntheticDescriptor) AppendStartFilter(kind FilterKind, field string, cmp Compare, val string) error {
	next, err := appendFilter("SyntheticDescriptor.AppendStartFilter", s.startFilter, s.startEvent, kind, field, cmp, val)
	if err != nil {
		return err
	}
	s.startFilter = next
	return nil
}

// AppendEndFilter extends the end-event filter expression.
func (s *SyntheticDescriptor) AppendEndFilter(kind FilterKind, field string, cmp Compare, val string) error {
	const op = "SyntheticDescriptor.AppendEndFilter"
	if err := s.requireEnd(op); err != nil {
		return err
	}
	next, err := appendFilter(op, s.endFilter, s.endEvent, kind, field, cmp, val)
	if err != nil {
		return err
	}
	s.endFilter = next
	return nil
}

func (s *SyntheticDescriptor) verifyEndVar(op, name string) error {
	if name == "" {
		return nil
	}
	if _, ok := s.varSrc[name]; !ok {
		return newError(op, NoSuchField, "no such synthetic variable %q", name)
	}
	return nil
}

// Trace adds an onmatch action that fires the synthetic event itself,
// passing args (names of previously-declared synthetic fields) as its
// arguments.
func (s *SyntheticDescriptor) Trace(args ...string) error {
	const op = "SyntheticDescriptor.Trace"
	for _, a := range args {
		if err := s.verifyEndVar(op, a); err != nil {
			return err
		}
	}
	refs := make([]string, len(args))
	for i, a := range args {
		refs[i] = "$" + a
	}
	s.actions = append(s.actions, action{handler: HandlerOnMatch, kind: ActionTrace, args: append([]string{s.name}, refs...)})
	return nil
}

// Snapshot adds a handler that snapshots the current trace buffer when
// varName reaches a new maximum (HandlerOnMax) or changes (HandlerOnChange).
func (s *SyntheticDescriptor) Snapshot(h Handler, varName string) error {
	const op = "SyntheticDescriptor.Snapshot"
	if h == HandlerOnMatch {
		return newError(op, InvalidArgument, "snapshot requires onmax or onchange")
	}
	if err := s.verifyEndVar(op, varName); err != nil {
		return err
	}
	s.actions = append(s.actions, action{handler: h, varName: varName, kind: ActionSnapshot})
	return nil
}

// Save adds fields to the most recently added onmax/onchange handler's
// save list, so its record captures additional context at the moment it
// fires. It must follow a Snapshot or another Save call for the same
// handler.
func (s *SyntheticDescriptor) Save(fields ...string) error {
	const op = "SyntheticDescriptor.Save"
	if len(s.actions) == 0 {
		return newError(op, InvalidArgument, "save must follow onmax or onchange")
	}
	last := &s.actions[len(s.actions)-1]
	if last.handler == HandlerOnMatch {
		return newError(op, InvalidArgument, "save does not apply to onmatch")
	}
	for _, f := range fields {
		if f == "" {
			return newError(op, InvalidArgument, "empty save field")
		}
	}
	if last.kind == ActionSave {
		last.args = append(last.args, fields...)
		return nil
	}
	s.actions = append(s.actions, action{handler: last.handler, varName: last.varName, kind: ActionSave, args: append([]string(nil), fields...)})
	return nil
}

// Complete marks the descriptor ready for Create. It is idempotent.
func (s *SyntheticDescriptor) Complete() error {
	const op = "SyntheticDescriptor.Complete"
	if err := s.requireEnd(op); err != nil {
		return err
	}
	if s.startKeys.len() == 0 {
		return newError(op, NotConfigured, "at least one match field is required")
	}
	s.complete = true
	return nil
}

// WellFormed reports whether both filter expressions can be closed and,
// if the descriptor is not start-only, it has been completed.
func (s *SyntheticDescriptor) WellFormed() bool {
	if !s.startFilter.WellFormed() || !s.endFilter.WellFormed() {
		return false
	}
	if s.endEvent != nil && !s.complete {
		return false
	}
	return true
}

// GetStartHist builds the start-side HistogramDescriptor: match keys
// first, then any additional start selections, applying start_type to
// each selection entry as a key suffix, or routing it to vals= when the
// entry's type is KeyCounter. This departs from a literal reading of the
// original library, which applies start_type uniformly regardless of
// whether a key came from the match-field list or the selection list;
// that reading would both mis-suffix match keys added via AddMatchField
// and misplace a KeyCounter entry. Here start_type only ever governs
// entries added through AddStartField.
func (s *SyntheticDescriptor) GetStartHist() (*HistogramDescriptor, error) {
	const op = "SyntheticDescriptor.GetStartHist"
	h := newHistogramFromEvent(s.provider, s.startEvent, s.cfg)

	for _, k := range s.startKeys.slice() {
		if err := h.AddKey(k, KeyNormal); err != nil {
			h.Close()
			return nil, err
		}
	}
	for i, sel := range s.startSelection.slice() {
		t := s.startType[i]
		if t == KeyCounter {
			if err := h.AddValue(sel); err != nil {
				h.Close()
				return nil, err
			}
			continue
		}
		if err := h.AddKey(sel, t); err != nil {
			h.Close()
			return nil, err
		}
	}

	h.filter = s.startFilter.clone()
	for _, v := range s.startVars.slice() {
		h.addVar(v)
	}
	return h, nil
}

func (s *SyntheticDescriptor) createHistKeys() string {
	return strings.Join(s.endKeys.slice(), ",")
}

// createActions renders every accumulated onmatch/onmax/onchange clause
// as ":onX(var).action(args)" or ":onmatch(sys.ev).trace(synth,args)"
// segments, in the order they were added.
func (s *SyntheticDescriptor) createActions() string {
	var b strings.Builder
	for _, a := range s.actions {
		b.WriteByte(':')
		switch a.handler {
		case HandlerOnMatch:
			fmt.Fprintf(&b, "onmatch(%s.%s)", s.startEvent.System, s.startEvent.Name)
		case HandlerOnMax:
			fmt.Fprintf(&b, "onmax(%s)", a.varName)
		case HandlerOnChange:
			fmt.Fprintf(&b, "onchange(%s)", a.varName)
		}
		switch a.kind {
		case ActionTrace:
			fmt.Fprintf(&b, ".trace(%s)", strings.Join(a.args, ","))
		case ActionSnapshot:
			b.WriteString(".snapshot(")
			b.WriteString(strings.Join(a.args, ","))
			b.WriteByte(')')
		case ActionSave:
			b.WriteString(".save(")
			b.WriteString(strings.Join(a.args, ","))
			b.WriteByte(')')
		}
	}
	return b.String()
}

// serializeEndHist renders the end-event trigger line: a hist keyed on
// the matching fields, driven entirely by the onmatch/onmax/onchange
// actions rather than vals=/sort=, plus any end-side filter.
func (s *SyntheticDescriptor) serializeEndHist() (string, error) {
	const op = "SyntheticDescriptor.serializeEndHist"
	if s.endKeys.len() == 0 {
		return "", newError(op, NotConfigured, "no match fields configured")
	}
	var b strings.Builder
	b.WriteString("hist:keys=")
	b.WriteString(s.createHistKeys())
	for _, v := range s.endVars.slice() {
		b.WriteByte(':')
		b.WriteString(v)
	}
	b.WriteString(s.createActions())
	if f := s.endFilter.String(); f != "" {
		b.WriteString(" if ")
		b.WriteString(f)
		b.WriteString(strings.Repeat(")", int(s.endFilter.parens)))
	}
	return b.String(), nil
}

// serializeSyntheticEvent renders the "synthetic_events" declaration
// line: the event name followed by its field declarations.
func (s *SyntheticDescriptor) serializeSyntheticEvent() string {
	return fmt.Sprintf("%s %s", s.name, strings.Join(s.vars.slice(), " "))
}

// Show renders, without touching the filesystem, the three shell
// commands Create would execute: the synthetic_events declaration, the
// start hist trigger, and the end hist trigger.
func (s *SyntheticDescriptor) Show(fs TraceFS, instance string) (string, error) {
	const op = "SyntheticDescriptor.Show"
	if !s.WellFormed() {
		return "", newError(op, NotConfigured, "descriptor is not complete or has an unterminated filter")
	}

	synthLine := s.serializeSyntheticEvent()
	synthPath, err := fs.InstanceDir(instance)
	if err != nil {
		return "", err
	}

	startHist, err := s.GetStartHist()
	if err != nil {
		return "", err
	}
	defer startHist.Close()
	startLine, err := startHist.Serialize(VerbStart)
	if err != nil {
		return "", err
	}
	startPath, err := fs.GetEventFile(instance, s.startEvent.System, s.startEvent.Name, "trigger")
	if err != nil {
		return "", err
	}

	endLine, err := s.serializeEndHist()
	if err != nil {
		return "", err
	}
	endPath, err := fs.GetEventFile(instance, s.endEvent.System, s.endEvent.Name, "trigger")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "echo '%s' > %s/synthetic_events\n", synthLine, synthPath)
	fmt.Fprintf(&b, "echo '%s' > %s\n", startLine, startPath)
	fmt.Fprintf(&b, "echo '%s' > %s\n", endLine, endPath)
	return b.String(), nil
}

// Create installs the synthetic event: the synthetic_events declaration,
// then the start trigger, then the end trigger. Any step's failure rolls
// back every step that already succeeded, in reverse order, leaving the
// kernel state as it was before Create was called.
func (s *SyntheticDescriptor) Create(fs TraceFS, instance string) error {
	const op = "SyntheticDescriptor.Create"
	if !s.WellFormed() {
		return newError(op, NotConfigured, "descriptor is not complete or has an unterminated filter")
	}

	synthLine := s.serializeSyntheticEvent()
	if err := fs.InstanceFileAppend(instance, "synthetic_events", synthLine); err != nil {
		return newError(op, IOFailure, "synthetic_events: %v", err)
	}

	startHist, err := s.GetStartHist()
	if err != nil {
		_ = fs.InstanceFileAppend(instance, "synthetic_events", "!"+synthLine)
		return err
	}
	defer startHist.Close()
	if err := startHist.Install(fs, instance, VerbStart); err != nil {
		_ = fs.InstanceFileAppend(instance, "synthetic_events", "!"+synthLine)
		return err
	}

	endLine, err := s.serializeEndHist()
	if err != nil {
		s.undoStart(fs, instance, startHist)
		_ = fs.InstanceFileAppend(instance, "synthetic_events", "!"+synthLine)
		return err
	}
	if err := fs.EventFileAppend(instance, s.endEvent.System, s.endEvent.Name, "trigger", endLine); err != nil {
		s.undoStart(fs, instance, startHist)
		_ = fs.InstanceFileAppend(instance, "synthetic_events", "!"+synthLine)
		return newError(op, IOFailure, "%v", err)
	}

	s.cfg.logger.Debugf("created synthetic event %q", s.name)
	return nil
}

func (s *SyntheticDescriptor) undoStart(fs TraceFS, instance string, startHist *HistogramDescriptor) {
	if err := startHist.Install(fs, instance, VerbDestroy); err != nil {
		s.cfg.logger.Errorf("rollback of start trigger for %q failed: %v", s.name, err)
	}
}

// Destroy removes the synthetic event's end trigger, start trigger, and
// synthetic_events declaration, in that order — the reverse of Create —
// best-effort: it continues past a failed step and returns the first
// error encountered, if any.
func (s *SyntheticDescriptor) Destroy(fs TraceFS, instance string) error {
	const op = "SyntheticDescriptor.Destroy"
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	_ = fs.EventDisable(instance, "synthetic", s.name)

	if s.endEvent != nil {
		if endLine, err := s.serializeEndHist(); err == nil {
			record(fs.EventFileAppend(instance, s.endEvent.System, s.endEvent.Name, "trigger", "!"+endLine))
		} else {
			record(err)
		}
	}

	if startHist, err := s.GetStartHist(); err == nil {
		record(startHist.Install(fs, instance, VerbDestroy))
		startHist.Close()
	} else {
		record(err)
	}

	synthLine := s.serializeSyntheticEvent()
	record(fs.InstanceFileAppend(instance, "synthetic_events", "!"+synthLine))

	if first != nil {
		return newError(op, IOFailure, "%v", first)
	}
	s.cfg.logger.Debugf("destroyed synthetic event %q", s.name)
	return nil
}
