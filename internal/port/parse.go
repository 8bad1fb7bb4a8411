package port

import (
	"fmt"
	"strconv"
	"strings"
)

// AnnouncementPrefix is the marker a sidecar writes in front of its port
// number on stdout, e.g. "PORT=5173".
const AnnouncementPrefix = "PORT="

// ParsePort parses s as a 16-bit unsigned port number after trimming
// surrounding whitespace. Negative, non-numeric and out-of-range input
// (anything above 65535) is rejected.
func ParsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(v), nil
}

// ParseAnnouncement extracts the port from a sidecar output line of the
// form "PORT=<digits>", optionally surrounded by whitespace.
//
// The second return value is false for anything that is not a well-formed
// announcement, including "PORT=" followed by a number that does not fit in
// 16 bits. Such lines are simply not announcements; callers ignore them.
func ParseAnnouncement(line string) (uint16, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), AnnouncementPrefix)
	if !ok {
		return 0, false
	}
	p, err := ParsePort(rest)
	if err != nil {
		return 0, false
	}
	return p, true
}
