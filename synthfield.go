package tracefs

import "fmt"

// synthFieldDecl renders a synthetic-event field declaration from a
// bound event field: fixed-size integers by size/signedness,
// "char name[N];" for fixed arrays, and "char name[];" for dynamic ones.
func synthFieldDecl(f Field, name string) (string, error) {
	const op = "synthFieldDecl"
	if f.IsArray {
		if f.IsDynamic {
			return fmt.Sprintf("char %s[];", name), nil
		}
		return fmt.Sprintf("char %s[%d];", name, f.Size), nil
	}

	var typ string
	switch f.Size {
	case 1:
		if f.Signed {
			typ = "char"
		} else {
			typ = "unsigned char"
		}
	case 2:
		if f.Signed {
			typ = "s16"
		} else {
			typ = "u16"
		}
	case 4:
		if f.Signed {
			typ = "s32"
		} else {
			typ = "u32"
		}
	case 8:
		if f.Signed {
			typ = "s64"
		} else {
			typ = "u64"
		}
	default:
		return "", newError(op, BadFormat, "unsupported field size %d for %q", f.Size, name)
	}

	return fmt.Sprintf("%s %s;", typ, name), nil
}
