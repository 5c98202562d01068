// Package session implements the destination-string parser: a URI-like
// `[scheme://][user[:password]@]host[:port]` syntax. It is grounded on
// original_source/distant-core's destination parser
// (manager/data/destination/parser.rs, net/common/destination/host.rs),
// rewritten from Rust's combinator style into straightforward sequential
// string slicing in katzenpost's plainer idiom, with the same structured
// parse-error taxonomy (EmptyLabel, LargeLabel, LargeName,
// StartsWithHyphen, ...).
package session

import (
	"net"

	"github.com/kestrelsys/rexec/rerrors"
)

// HostKind distinguishes the three forms a Host can take.
type HostKind int

const (
	HostIPv4 HostKind = iota
	HostIPv6
	HostName
)

// Host is a parsed destination host: either an IPv4/IPv6 address or a
// validated hostname.
type Host struct {
	Kind HostKind
	IP   net.IP
	Name string
}

func (h Host) String() string {
	switch h.Kind {
	case HostIPv4, HostIPv6:
		return h.IP.String()
	default:
		return h.Name
	}
}

// HostParseErrorKind enumerates the structured hostname validation failures
//.
type HostParseErrorKind string

const (
	EmptyLabel       HostParseErrorKind = "EmptyLabel"
	EndsWithHyphen   HostParseErrorKind = "EndsWithHyphen"
	EndsWithPeriod   HostParseErrorKind = "EndsWithPeriod"
	InvalidLabel     HostParseErrorKind = "InvalidLabel"
	LargeLabel       HostParseErrorKind = "LargeLabel"
	LargeName        HostParseErrorKind = "LargeName"
	StartsWithHyphen HostParseErrorKind = "StartsWithHyphen"
	StartsWithPeriod HostParseErrorKind = "StartsWithPeriod"
)

// HostParseError is the structured error returned by ParseHost.
type HostParseError struct {
	Kind HostParseErrorKind
}

func (e *HostParseError) Error() string {
	switch e.Kind {
	case EmptyLabel:
		return "hostname cannot have an empty label"
	case EndsWithHyphen:
		return "hostname cannot end with hyphen ('-')"
	case EndsWithPeriod:
		return "hostname cannot end with period ('.')"
	case InvalidLabel:
		return "hostname label can only be a-zA-Z0-9 or hyphen ('-')"
	case LargeLabel:
		return "hostname label cannot be larger than 63 characters"
	case LargeName:
		return "hostname cannot be larger than 253 characters"
	case StartsWithHyphen:
		return "hostname cannot start with hyphen ('-')"
	case StartsWithPeriod:
		return "hostname cannot start with period ('.')"
	default:
		return "invalid hostname"
	}
}

func isAlnumASCII(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ParseHost parses s as an IPv4 address, IPv6 address, or a validated
// hostname.
func ParseHost(s string) (Host, error) {
	if ip := net.ParseIP(s); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return Host{Kind: HostIPv4, IP: ip4}, nil
		}
		return Host{Kind: HostIPv6, IP: ip}, nil
	}

	if s == "" {
		return Host{}, &HostParseError{Kind: InvalidLabel}
	}
	if len(s) > 253 {
		return Host{}, &HostParseError{Kind: LargeName}
	}

	labelLen := 0
	var last byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 0 && c == '.' {
			return Host{}, &HostParseError{Kind: StartsWithPeriod}
		}
		if i == 0 && c == '-' {
			return Host{}, &HostParseError{Kind: StartsWithHyphen}
		}

		switch {
		case isAlnumASCII(c):
			labelLen++
			if labelLen > 63 {
				return Host{}, &HostParseError{Kind: LargeLabel}
			}
		case c == '.':
			if labelLen == 0 {
				return Host{}, &HostParseError{Kind: EmptyLabel}
			}
			labelLen = 0
		case c == '-':
			// hyphen is valid mid-label; boundary cases handled above/below
		default:
			return Host{}, &HostParseError{Kind: InvalidLabel}
		}
		last = c
	}

	if last == '.' {
		return Host{}, &HostParseError{Kind: EndsWithPeriod}
	}
	if last == '-' {
		return Host{}, &HostParseError{Kind: EndsWithHyphen}
	}

	return Host{Kind: HostName, Name: s}, nil
}

// AsInvalidData classifies a HostParseError (or any destination parse
// error) as InvalidData for callers that want the shared taxonomy
// rather than the structured kind.
func AsInvalidData(err error) error {
	if err == nil {
		return nil
	}
	return rerrors.Wrap(rerrors.InvalidData, err)
}
