package session

import (
	"strconv"
	"strings"
)

// Destination is the fully-parsed form of a `[scheme://][user[:password]@]host[:port]`
// string.
type Destination struct {
	Scheme   string
	Username string
	Password string
	Host     Host
	Port     uint16
	HasPort  bool
}

// DestinationParseError wraps a plain message describing why Parse failed;
// unlike HostParseError it is not further subdivided because the
// surrounding scheme/user/password/port grammar has no analogous taxonomy
// in the spec beyond the host rules.
type DestinationParseError struct {
	Message string
}

func (e *DestinationParseError) Error() string { return e.Message }

// Parse parses s into a Destination. It walks the
// grammar left to right — scheme, then username/password, then host, then
// port — mirroring the original parser's four-stage structure but as plain
// sequential slicing rather than combinators, matching katzenpost's
// preference for straight-line code over abstracted parser machinery.
func Parse(s string) (Destination, error) {
	var d Destination

	if scheme, rest, ok := splitScheme(s); ok {
		d.Scheme = scheme
		s = rest
	}

	if at := strings.IndexByte(s, '@'); at >= 0 {
		auth := s[:at]
		s = s[at+1:]
		user, pass, err := splitUserPassword(auth)
		if err != nil {
			return Destination{}, err
		}
		d.Username, d.Password = user, pass
	}

	hostPart := s
	if colon := lastHostPortColon(s); colon >= 0 {
		hostPart = s[:colon]
		portPart := s[colon+1:]
		port, err := strconv.ParseUint(portPart, 10, 16)
		if err != nil {
			return Destination{}, &DestinationParseError{Message: "port is not an unsigned 16-bit integer"}
		}
		d.Port = uint16(port)
		d.HasPort = true
	}

	if hostPart == "" {
		return Destination{}, &DestinationParseError{Message: "destination has no host"}
	}
	host, err := ParseHost(hostPart)
	if err != nil {
		return Destination{}, err
	}
	d.Host = host

	return d, nil
}

// splitScheme extracts a leading `scheme://` prefix, validating that scheme
// contains only alphanumerics plus '+', '.', '-'.
func splitScheme(s string) (scheme, rest string, ok bool) {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return "", s, false
	}
	scheme = s[:idx]
	for i := 0; i < len(scheme); i++ {
		c := scheme[i]
		if !isAlnumASCII(c) && c != '+' && c != '.' && c != '-' {
			return "", s, false
		}
	}
	return scheme, s[idx+3:], true
}

// splitUserPassword parses `user[:password]` out of the portion preceding
// '@'.
func splitUserPassword(auth string) (user, password string, err error) {
	if auth == "" {
		return "", "", nil
	}
	if colon := strings.IndexByte(auth, ':'); colon >= 0 {
		return auth[:colon], auth[colon+1:], nil
	}
	return auth, "", nil
}

// lastHostPortColon finds the ':' separating host from port, being careful
// not to split an IPv6 literal's internal colons: a bracketed `[::1]:22`
// form is not required by the spec grammar, so a bare IPv6 host is only
// unambiguous without a port; when more than one colon is present and the
// whole string fails to parse as a bare IPv6 address, the last colon is
// treated as the port separator.
func lastHostPortColon(s string) int {
	if _, err := ParseHost(s); err == nil {
		return -1 // s parses whole (including as IPv6) with no port suffix
	}
	return strings.LastIndexByte(s, ':')
}
