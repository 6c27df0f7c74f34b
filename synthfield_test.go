package tracefs

import "testing"

func TestSynthFieldDeclScalars(t *testing.T) {
	cases := []struct {
		f    Field
		name string
		want string
	}{
		{Field{Size: 1, Signed: false}, "flag", "unsigned char flag;"},
		{Field{Size: 1, Signed: true}, "flag", "char flag;"},
		{Field{Size: 2, Signed: false}, "port", "u16 port;"},
		{Field{Size: 2, Signed: true}, "port", "s16 port;"},
		{Field{Size: 4, Signed: false}, "pid", "u32 pid;"},
		{Field{Size: 4, Signed: true}, "pid", "s32 pid;"},
		{Field{Size: 8, Signed: false}, "lat", "u64 lat;"},
		{Field{Size: 8, Signed: true}, "lat", "s64 lat;"},
	}
	for _, c := range cases {
		got, err := synthFieldDecl(c.f, c.name)
		if err != nil {
			t.Fatalf("unexpected error for %+v: %v", c.f, err)
		}
		if got != c.want {
			t.Fatalf("got %q want %q", got, c.want)
		}
	}
}

func TestSynthFieldDeclArrays(t *testing.T) {
	fixed := Field{IsArray: true, Size: 16}
	got, err := synthFieldDecl(fixed, "comm")
	if err != nil || got != "char comm[16];" {
		t.Fatalf("got %q err %v", got, err)
	}

	dynamic := Field{IsArray: true, IsDynamic: true}
	got, err = synthFieldDecl(dynamic, "extra")
	if err != nil || got != "char extra[];" {
		t.Fatalf("got %q err %v", got, err)
	}
}

func TestSynthFieldDeclUnsupportedSize(t *testing.T) {
	if _, err := synthFieldDecl(Field{Size: 3}, "odd"); !IsError(err, BadFormat) {
		t.Fatalf("expected BadFormat, got %v", err)
	}
}
