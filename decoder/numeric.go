// widthBytes, isSigned, and fitsNativeJSONNumber classify a declared
// Anchor integer primitive by byte width, signedness, and JSON encoding.
package decoder

// widthBytes returns the little-endian byte width of a primitive integer
// type name, or 0 if the name is not a known integer width.
func widthBytes(name string) int {
	switch name {
	case "u8", "i8":
		return 1
	case "u16", "i16":
		return 2
	case "u32", "i32":
		return 4
	case "u64", "i64":
		return 8
	case "u128", "i128":
		return 16
	default:
		return 0
	}
}

func isSigned(name string) bool {
	switch name {
	case "i8", "i16", "i32", "i64", "i128":
		return true
	default:
		return false
	}
}

// fitsNativeJSONNumber reports whether a primitive's decoded value should be
// carried as a bare JSON number (i8..i32/u8..u32) rather than a decimal
// string (u64/u128/i64/i128): widths beyond float64's safe integer range
// need the string encoding to avoid silent precision loss.
func fitsNativeJSONNumber(name string) bool {
	switch name {
	case "u8", "u16", "u32", "i8", "i16", "i32":
		return true
	default:
		return false
	}
}
