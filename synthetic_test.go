package tracefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func intField(signed bool) Field { return Field{Size: 4, Signed: signed} }

func testSynthProvider() *StaticEventProvider {
	start := &Event{
		System: "sched",
		Name:   "sched_waking",
		Fields: map[string]Field{
			"pid":  intField(true),
			"prio": intField(true),
			"cpu":  intField(true),
		},
	}
	end := &Event{
		System: "sched",
		Name:   "sched_switch",
		Fields: map[string]Field{
			"next_pid":  intField(true),
			"next_prio": intField(true),
		},
	}
	return NewStaticEventProvider(start, end)
}

func buildWakeLatency(t *testing.T) *SyntheticDescriptor {
	t.Helper()
	p := testSynthProvider()
	s, err := NewSyntheticDescriptor(p, "wake_lat", "sched", "sched_waking", "sched", "sched_switch", WithEntropySource(fixedEntropy(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddMatchField("pid", "next_pid", "pid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddCompareField("prio", "next_prio", CalcAdd, "prio_sum"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddStartField("prio", KeyHex); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddStartField("cpu", KeyCounter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Trace("pid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNewSyntheticDescriptorAcquiresTwoRefs(t *testing.T) {
	p := testSynthProvider()
	s, err := NewSyntheticDescriptor(p, "wake_lat", "sched", "sched_waking", "sched", "sched_switch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.RefCount(); got != 2 {
		t.Fatalf("expected refcount 2, got %d", got)
	}
	s.Close()
	if got := p.RefCount(); got != 0 {
		t.Fatalf("expected refcount 0 after Close, got %d", got)
	}
}

func TestSyntheticStartOnlyThenBindEnd(t *testing.T) {
	p := testSynthProvider()
	s, err := NewSyntheticStartOnly(p, "wake_lat", "sched", "sched_waking")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.RefCount(); got != 1 {
		t.Fatalf("expected refcount 1 for start-only, got %d", got)
	}
	if err := s.AddMatchField("pid", "next_pid", "pid"); err == nil {
		t.Fatal("expected error using match field before end is bound")
	}
	if err := s.BindEnd("sched", "sched_switch"); err != nil {
		t.Fatalf("unexpected error binding end: %v", err)
	}
	if got := p.RefCount(); got != 2 {
		t.Fatalf("expected refcount 2 after BindEnd, got %d", got)
	}
	if err := s.BindEnd("sched", "sched_switch"); err == nil {
		t.Fatal("expected error re-binding end")
	}
	if err := s.AddMatchField("pid", "next_pid", "pid"); err != nil {
		t.Fatalf("unexpected error after bind: %v", err)
	}
}

func TestAddMatchFieldRejectsMissingField(t *testing.T) {
	p := testSynthProvider()
	s, _ := NewSyntheticDescriptor(p, "wake_lat", "sched", "sched_waking", "sched", "sched_switch")
	defer s.Close()
	// pid (int4) vs a field that doesn't exist
	if err := s.AddMatchField("pid", "missing", "pid"); !IsError(err, NoSuchField) {
		t.Fatalf("expected NoSuchField, got %v", err)
	}
}

func TestCompleteRequiresMatchField(t *testing.T) {
	p := testSynthProvider()
	s, _ := NewSyntheticDescriptor(p, "wake_lat", "sched", "sched_waking", "sched", "sched_switch")
	defer s.Close()
	if err := s.Complete(); !IsError(err, NotConfigured) {
		t.Fatalf("expected NotConfigured, got %v", err)
	}
}

func TestGetStartHistAppliesStartType(t *testing.T) {
	s := buildWakeLatency(t)
	defer s.Close()
	h, err := s.GetStartHist()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer h.Close()
	got, err := h.Serialize(VerbStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "hist:keys=pid,prio.hex:__arg_7_1=prio:vals=cpu"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSerializeEndHistIncludesActions(t *testing.T) {
	s := buildWakeLatency(t)
	defer s.Close()
	got, err := s.serializeEndHist()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "hist:keys=next_pid:pid=next_pid:prio_sum=next_prio+$__arg_7_1:onmatch(sched.sched_waking).trace(wake_lat,$pid)"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSerializeSyntheticEvent(t *testing.T) {
	s := buildWakeLatency(t)
	defer s.Close()
	got := s.serializeSyntheticEvent()
	if !strings.HasPrefix(got, "wake_lat ") {
		t.Fatalf("unexpected synthetic event line: %q", got)
	}
	if !strings.Contains(got, "s32 pid;") || !strings.Contains(got, "s32 prio_sum;") {
		t.Fatalf("unexpected field declarations: %q", got)
	}
}

func TestTraceRejectsUnknownArg(t *testing.T) {
	p := testSynthProvider()
	s, _ := NewSyntheticDescriptor(p, "wake_lat", "sched", "sched_waking", "sched", "sched_switch")
	defer s.Close()
	s.AddMatchField("pid", "next_pid", "pid")
	if err := s.Trace("nonexistent"); !IsError(err, NoSuchField) {
		t.Fatalf("expected NoSuchField, got %v", err)
	}
}

func TestSnapshotRequiresOnMaxOrOnChange(t *testing.T) {
	s := buildWakeLatency(t)
	defer s.Close()
	if err := s.Snapshot(HandlerOnMatch, "pid"); !IsError(err, InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if err := s.Snapshot(HandlerOnMax, "pid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSaveFollowsSnapshot(t *testing.T) {
	s := buildWakeLatency(t)
	defer s.Close()
	if err := s.Save("prio_sum"); err == nil {
		t.Fatal("expected error: save after a trace-only onmatch action")
	}
	if err := s.Snapshot(HandlerOnChange, "prio_sum"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save("prio_sum"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := s.actions[len(s.actions)-1]
	if len(last.args) != 1 || last.args[0] != "prio_sum" {
		t.Fatalf("unexpected save args: %v", last.args)
	}
}

func TestWellFormedRequiresCompleteAndClosedFilters(t *testing.T) {
	p := testSynthProvider()
	s, _ := NewSyntheticDescriptor(p, "wake_lat", "sched", "sched_waking", "sched", "sched_switch")
	defer s.Close()
	s.AddMatchField("pid", "next_pid", "pid")

	if s.WellFormed() {
		t.Fatal("expected not well-formed before Complete")
	}
	if err := s.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.WellFormed() {
		t.Fatal("expected well-formed after Complete")
	}
	if err := s.AppendEndFilter(FilterOpenParen, "", 0, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.WellFormed() {
		t.Fatal("expected not well-formed with an open paren")
	}
}

func setupSynthFS(t *testing.T) (string, TraceFS) {
	t.Helper()
	root := t.TempDir()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.WriteFile(filepath.Join(root, "synthetic_events"), nil, 0o644))
	startDir := filepath.Join(root, "events", "sched", "sched_waking")
	endDir := filepath.Join(root, "events", "sched", "sched_switch")
	must(os.MkdirAll(startDir, 0o755))
	must(os.MkdirAll(endDir, 0o755))
	must(os.WriteFile(filepath.Join(startDir, "hist"), nil, 0o644))
	must(os.WriteFile(filepath.Join(startDir, "trigger"), nil, 0o644))
	must(os.WriteFile(filepath.Join(endDir, "trigger"), nil, 0o644))
	return root, NewTraceFS(root)
}

func TestSyntheticDescriptorCreateAndDestroy(t *testing.T) {
	root, fs := setupSynthFS(t)
	s := buildWakeLatency(t)
	defer s.Close()

	if err := s.Create(fs, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	synth, err := os.ReadFile(filepath.Join(root, "synthetic_events"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(synth), "wake_lat ") {
		t.Fatalf("unexpected synthetic_events contents: %q", synth)
	}

	startTrigger, err := os.ReadFile(filepath.Join(root, "events", "sched", "sched_waking", "trigger"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(startTrigger), "hist:keys=pid,prio.hex") {
		t.Fatalf("unexpected start trigger contents: %q", startTrigger)
	}

	endTrigger, err := os.ReadFile(filepath.Join(root, "events", "sched", "sched_switch", "trigger"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(endTrigger), "onmatch(sched.sched_waking).trace(wake_lat,$pid)") {
		t.Fatalf("unexpected end trigger contents: %q", endTrigger)
	}

	if err := s.Destroy(fs, ""); err != nil {
		t.Fatalf("unexpected error destroying: %v", err)
	}

	endTrigger, err = os.ReadFile(filepath.Join(root, "events", "sched", "sched_switch", "trigger"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(endTrigger), "!hist:keys=next_pid") {
		t.Fatalf("expected destroy line appended, got %q", endTrigger)
	}
}

func TestSyntheticDescriptorCreateRollsBackOnEndFailure(t *testing.T) {
	root, fs := setupSynthFS(t)
	// remove the end trigger file so the final write step fails
	if err := os.Remove(filepath.Join(root, "events", "sched", "sched_switch", "trigger")); err != nil {
		t.Fatal(err)
	}
	s := buildWakeLatency(t)
	defer s.Close()

	if err := s.Create(fs, ""); err == nil {
		t.Fatal("expected error when end trigger write fails")
	}

	synth, err := os.ReadFile(filepath.Join(root, "synthetic_events"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(synth), "!wake_lat") {
		t.Fatalf("expected synthetic_events declaration to be rolled back, got %q", synth)
	}
	startTrigger, err := os.ReadFile(filepath.Join(root, "events", "sched", "sched_waking", "trigger"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(startTrigger), "!hist:keys=pid,prio.hex") {
		t.Fatalf("expected start trigger to be rolled back, got %q", startTrigger)
	}
}

func TestShowDoesNotTouchFilesystem(t *testing.T) {
	s := buildWakeLatency(t)
	defer s.Close()
	got, err := s.Show(NewTraceFS("/tracing"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "synthetic_events") || !strings.Contains(got, "sched_waking/trigger") || !strings.Contains(got, "sched_switch/trigger") {
		t.Fatalf("unexpected show output: %q", got)
	}
}
