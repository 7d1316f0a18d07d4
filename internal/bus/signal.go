package bus

import (
	"strconv"
	"strings"
)

// Event is a single decoded property-change notification for one peripheral.
// Events live for the duration of one dispatch cycle and are never stored.
type Event struct {
	// Address is the peripheral address in canonical colon form.
	Address string

	// Properties holds the changed properties. Values are bool, int or
	// string depending on the wire type.
	Properties map[string]any
}

// signalHeaderPrefix starts every signal block emitted by the bus monitor.
const signalHeaderPrefix = "signal "

// isSignalHeader reports whether a line opens a new signal block. A header
// identifies the sender and carries the object path the signal originated
// from, e.g.
//
//	signal time=1700000000 sender=:1.3 -> destination=(null) serial=91
//	  path=/org/bluez/hci0/dev_E4_17_D8_EC_04_1E; interface=...
func isSignalHeader(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, signalHeaderPrefix) && strings.Contains(trimmed, "sender=")
}

// headerPath extracts the object path from a signal header line. Returns ""
// when the header carries no path token.
func headerPath(line string) string {
	idx := strings.Index(line, "path=")
	if idx < 0 {
		return ""
	}
	rest := line[idx+len("path="):]
	end := strings.IndexAny(rest, "; \t")
	if end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// parseBlock decodes one accumulated signal block into an Event. The first
// line must be the header; the remaining lines are scanned for property
// entries. Blocks without a device address or without any decodable property
// are discarded (ok == false).
func parseBlock(lines []string) (Event, bool) {
	if len(lines) == 0 {
		return Event{}, false
	}

	path := headerPath(lines[0])
	if path == "" {
		return Event{}, false
	}
	addr, ok := AddressFromPath(path)
	if !ok {
		return Event{}, false
	}

	props := scanProperties(lines[1:])
	if len(props) == 0 {
		return Event{}, false
	}

	return Event{Address: addr, Properties: props}, true
}

// scanProperties walks block lines and extracts (name, typed value) pairs.
//
// A bare `string "<Name>"` line records a pending property name; the next
// typed-value line (`boolean`, `int32`, `int16`, or a variant-wrapped string)
// completes the pair. Lines of other types are skipped, as are typed values
// with no pending name. A second name line before any value replaces the
// pending name, which also drops interface-name markers harmlessly.
func scanProperties(lines []string) map[string]any {
	props := make(map[string]any)
	pending := ""

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		switch {
		case strings.Contains(line, "boolean "):
			if pending == "" {
				continue
			}
			if v, ok := parseBoolLiteral(line); ok {
				props[pending] = v
				pending = ""
			}

		case strings.Contains(line, "int32 ") || strings.Contains(line, "int16 "):
			if pending == "" {
				continue
			}
			if v, ok := parseIntLiteral(line); ok {
				props[pending] = v
				pending = ""
			}

		case strings.HasPrefix(line, "variant"):
			// A variant-wrapped string is a value, not a property name.
			if pending == "" {
				continue
			}
			if v, ok := quotedValue(line); ok {
				props[pending] = v
				pending = ""
			}

		case strings.HasPrefix(line, `string "`):
			if name, ok := quotedValue(line); ok {
				pending = name
			}
		}
	}

	return props
}

// parseBoolLiteral decodes the trailing true/false literal of a boolean line.
func parseBoolLiteral(line string) (bool, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, false
	}
	switch fields[len(fields)-1] {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// parseIntLiteral decodes the trailing signed integer of an int32/int16 line.
func parseIntLiteral(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// quotedValue extracts the first double-quoted token of a line.
func quotedValue(line string) (string, bool) {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(line[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

// ObjectRecord is one discovered bus object from a bulk enumeration dump.
type ObjectRecord struct {
	Path       string
	Address    string
	Properties map[string]any
}

// ParseObjectDump decodes the text payload of an enumerate-all-objects call
// (the print-reply form of GetManagedObjects) into per-device records. It is
// the bulk-load sibling of the reactor's block parser and shares its
// property scanner. Objects that do not encode a peripheral address, such as
// the adapter itself, are skipped.
func ParseObjectDump(payload string) []ObjectRecord {
	var records []ObjectRecord
	var current *ObjectRecord
	var pendingLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Properties = scanProperties(pendingLines)
		records = append(records, *current)
		current = nil
		pendingLines = nil
	}

	for _, raw := range strings.Split(payload, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, `object path "`) {
			flush()
			path, ok := quotedValue(line)
			if !ok {
				continue
			}
			addr, ok := AddressFromPath(path)
			if !ok {
				continue
			}
			current = &ObjectRecord{Path: path, Address: addr}
			continue
		}
		if current != nil {
			pendingLines = append(pendingLines, line)
		}
	}
	flush()

	return records
}
