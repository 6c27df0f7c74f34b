package tracefs

import "testing"

type fixedEntropy uint32

func (f fixedEntropy) Uint32() uint32 { return uint32(f) }

func TestArgNamerNextIsMonotonic(t *testing.T) {
	a := newArgNamer(fixedEntropy(7))
	first := a.next()
	second := a.next()
	if first == second {
		t.Fatalf("expected distinct names, got %q twice", first)
	}
	want1 := "__arg_7_1"
	if first != want1 {
		t.Fatalf("got %q want %q", first, want1)
	}
	want2 := "__arg_7_2"
	if second != want2 {
		t.Fatalf("got %q want %q", second, want2)
	}
}

func TestArgNamerRollback(t *testing.T) {
	a := newArgNamer(fixedEntropy(1))
	a.next()
	a.next()
	a.rollback()
	third := a.next()
	if third != "__arg_1_2" {
		t.Fatalf("expected rollback to reuse counter slot, got %q", third)
	}
}

func TestArgNamerRollbackOnEmptyIsNoop(t *testing.T) {
	a := newArgNamer(fixedEntropy(1))
	a.rollback()
	if a.cnt != 0 {
		t.Fatalf("expected cnt to stay at 0, got %d", a.cnt)
	}
}

func TestArgNamerDefaultsToUUIDEntropy(t *testing.T) {
	a := newArgNamer(nil)
	if _, ok := a.entropy.(uuidEntropy); !ok {
		t.Fatalf("expected default entropy source to be uuidEntropy, got %T", a.entropy)
	}
}
