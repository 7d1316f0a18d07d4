package bus

import "strings"

// addressOctets is the number of hex octets in a peripheral address.
const addressOctets = 6

// devSegmentPrefix marks the object-path segment that encodes a peripheral
// address, e.g. "dev_E4_17_D8_EC_04_1E".
const devSegmentPrefix = "dev_"

// CanonicalAddress normalises an address to canonical colon-separated
// upper-case hex form. Underscore and dash separators are accepted.
// Returns false if the input is not six valid hex octets.
func CanonicalAddress(addr string) (string, bool) {
	replaced := strings.NewReplacer("_", ":", "-", ":").Replace(addr)
	parts := strings.Split(replaced, ":")
	if len(parts) != addressOctets {
		return "", false
	}
	for i, p := range parts {
		if len(p) != 2 || !isHexByte(p) {
			return "", false
		}
		parts[i] = strings.ToUpper(p)
	}
	return strings.Join(parts, ":"), true
}

// AddressFromPath extracts the canonical peripheral address from a bus object
// path such as "/org/bluez/hci0/dev_E4_17_D8_EC_04_1E". Returns false when
// the path carries no device segment.
func AddressFromPath(path string) (string, bool) {
	for _, seg := range strings.Split(path, "/") {
		if !strings.HasPrefix(seg, devSegmentPrefix) {
			continue
		}
		if addr, ok := CanonicalAddress(seg[len(devSegmentPrefix):]); ok {
			return addr, true
		}
	}
	return "", false
}

// DevicePath derives the bus object path for an address under the given
// adapter path, the inverse of AddressFromPath.
func DevicePath(adapterPath, address string) string {
	return adapterPath + "/" + devSegmentPrefix + strings.ReplaceAll(address, ":", "_")
}

func isHexByte(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
