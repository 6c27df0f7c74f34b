package tracefs

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// Field describes one field of a trace event's format, enough to decide
// key-type validity, field compatibility, and synthetic-field typing.
type Field struct {
	Name      string
	Size      int
	Signed    bool
	IsArray   bool
	IsDynamic bool
}

// flags bundles the bits the original C library calls "field->flags":
// two fields are compatible iff they share flags and size.
func (f Field) flags() (bool, bool, bool) {
	return f.Signed, f.IsArray, f.IsDynamic
}

// CompatibleWith reports whether f and o share flags and size, the
// compatibility test required for synthetic match/compare fields.
func (f Field) CompatibleWith(o Field) bool {
	fs, fa, fd := f.flags()
	os_, oa, od := o.flags()
	return fs == os_ && fa == oa && fd == od && f.Size == o.Size
}

// Event is a read-only event reference: a system, a name, and its field
// schema. The core never mutates an Event; it only reads from it.
type Event struct {
	System string
	Name   string
	Fields map[string]Field
}

// Field looks up a field by name.
func (e *Event) Field(name string) (Field, bool) {
	f, ok := e.Fields[name]
	return f, ok
}

// EventProvider resolves (system, event) names to Event metadata and is
// refcounted: descriptors Acquire a reference at construction and
// Release it when done, so a provider can be shared across descriptors
// and freed once the last one lets go.
type EventProvider interface {
	FindEvent(system, name string) (*Event, error)
	Acquire()
	Release()
}

// StaticEventProvider is an in-memory EventProvider, primarily useful for
// tests and for synthetic-event construction against events whose schema
// is already known to the caller.
type StaticEventProvider struct {
	events map[string]*Event // keyed by "system/name" and by "name" (first registered wins)
	refs   int32
}

// NewStaticEventProvider builds a provider over a fixed set of events.
func NewStaticEventProvider(events ...*Event) *StaticEventProvider {
	p := &StaticEventProvider{events: make(map[string]*Event)}
	for _, e := range events {
		p.events[e.System+"/"+e.Name] = e
		if _, ok := p.events[e.Name]; !ok {
			p.events[e.Name] = e
		}
	}
	return p
}

// FindEvent resolves system/name. When system is empty, the first
// registered event with that name is used, matching find_event's
// "system may be absent; resolution picks the first match" contract.
func (p *StaticEventProvider) FindEvent(system, name string) (*Event, error) {
	if name == "" {
		return nil, newError("FindEvent", InvalidArgument, "event name is empty")
	}
	if system != "" {
		if e, ok := p.events[system+"/"+name]; ok {
			return e, nil
		}
		return nil, newError("FindEvent", NoSuchEvent, "%s/%s", system, name)
	}
	if e, ok := p.events[name]; ok {
		return e, nil
	}
	return nil, newError("FindEvent", NoSuchEvent, "%s", name)
}

func (p *StaticEventProvider) Acquire() { atomic.AddInt32(&p.refs, 1) }
func (p *StaticEventProvider) Release() { atomic.AddInt32(&p.refs, -1) }

// RefCount reports the current reference count; exported for tests that
// assert descriptor Close releases its provider reference.
func (p *StaticEventProvider) RefCount() int32 { return atomic.LoadInt32(&p.refs) }

// FormatEventProvider resolves events by reading the tracefs "format"
// file under events/<system>/<name>/format, the same text the kernel
// exposes to perf and trace-cmd. It is the production EventProvider used
// by cmd/tracefsctl against a real tracing mount.
type FormatEventProvider struct {
	fs    TraceFS
	cache map[string]*Event
	refs  int32
}

// NewFormatEventProvider builds a provider backed by fs.
func NewFormatEventProvider(fs TraceFS) *FormatEventProvider {
	return &FormatEventProvider{fs: fs, cache: make(map[string]*Event)}
}

var formatFieldRE = regexp.MustCompile(`^\s*field:([^;]+);\s*offset:(\d+);\s*size:(\d+);\s*signed:(\d+);`)

// FindEvent resolves system/name by listing events/*/name/format when
// system is empty, else reading the one file directly.
func (p *FormatEventProvider) FindEvent(system, name string) (*Event, error) {
	if name == "" {
		return nil, newError("FindEvent", InvalidArgument, "event name is empty")
	}
	if system != "" {
		if e, ok := p.cache[system+"/"+name]; ok {
			return e, nil
		}
		e, err := p.readFormat(system, name)
		if err != nil {
			return nil, err
		}
		p.cache[system+"/"+name] = e
		return e, nil
	}
	systems, err := p.fs.ListEventSystems()
	if err != nil {
		return nil, newError("FindEvent", NoSuchEvent, "%s: %v", name, err)
	}
	for _, sys := range systems {
		if e, err := p.readFormat(sys, name); err == nil {
			p.cache[sys+"/"+name] = e
			return e, nil
		}
	}
	return nil, newError("FindEvent", NoSuchEvent, "%s", name)
}

func (p *FormatEventProvider) readFormat(system, name string) (*Event, error) {
	path, err := p.fs.GetEventFile("", system, name, "format")
	if err != nil {
		return nil, newError("FindEvent", NoSuchEvent, "%s/%s: %v", system, name, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, newError("FindEvent", NoSuchEvent, "%s/%s: %v", system, name, err)
	}
	defer f.Close()

	ev := &Event{System: system, Name: name, Fields: make(map[string]Field)}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		m := formatFieldRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		decl := strings.TrimSpace(m[1])
		size, _ := strconv.Atoi(m[3])
		signed := m[4] == "1"
		fname, isArray, isDynamic := parseFieldDecl(decl)
		if fname == "" {
			continue
		}
		ev.Fields[fname] = Field{
			Name:      fname,
			Size:      size,
			Signed:    signed,
			IsArray:   isArray,
			IsDynamic: isDynamic,
		}
	}
	if err := sc.Err(); err != nil {
		return nil, newError("FindEvent", IOFailure, "%s/%s: %v", system, name, err)
	}
	return ev, nil
}

// parseFieldDecl extracts the field name from a C-ish declaration such
// as "int foo", "char foo[8]", or "__data_loc char[] foo".
func parseFieldDecl(decl string) (name string, isArray, isDynamic bool) {
	if idx := strings.Index(decl, "[]"); idx >= 0 {
		isArray, isDynamic = true, true
		decl = decl[:idx] + decl[idx+2:]
	} else if open := strings.IndexByte(decl, '['); open >= 0 {
		if close := strings.IndexByte(decl[open:], ']'); close >= 0 {
			isArray = true
			decl = decl[:open] + decl[open+close+1:]
		}
	}
	fields := strings.Fields(decl)
	if len(fields) == 0 {
		return "", isArray, isDynamic
	}
	last := fields[len(fields)-1]
	return strings.TrimPrefix(last, "*"), isArray, isDynamic
}

func (p *FormatEventProvider) Acquire() { atomic.AddInt32(&p.refs, 1) }
func (p *FormatEventProvider) Release() { atomic.AddInt32(&p.refs, -1) }

func (p *FormatEventProvider) String() string {
	return fmt.Sprintf("FormatEventProvider(%d cached events)", len(p.cache))
}
