package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFullDestinationString(t *testing.T) {
	d, err := Parse("scheme://u:p@example.com:22")
	require.NoError(t, err)
	require.Equal(t, "scheme", d.Scheme)
	require.Equal(t, "u", d.Username)
	require.Equal(t, "p", d.Password)
	require.Equal(t, HostName, d.Host.Kind)
	require.Equal(t, "example.com", d.Host.Name)
	require.True(t, d.HasPort)
	require.EqualValues(t, 22, d.Port)
}

func TestParseEmptyLabelFails(t *testing.T) {
	_, err := Parse("example..com")
	require.Error(t, err)
	hpe, ok := err.(*HostParseError)
	require.True(t, ok)
	require.Equal(t, EmptyLabel, hpe.Kind)
}

func TestParseLargeNameFails(t *testing.T) {
	_, err := Parse(strings.Repeat("a", 254))
	require.Error(t, err)
	hpe, ok := err.(*HostParseError)
	require.True(t, ok)
	require.Equal(t, LargeName, hpe.Kind)
}

func TestParseBareHostname(t *testing.T) {
	d, err := Parse("localhost")
	require.NoError(t, err)
	require.Equal(t, "localhost", d.Host.Name)
	require.False(t, d.HasPort)
	require.Empty(t, d.Scheme)
}

func TestParseIPv4Host(t *testing.T) {
	d, err := Parse("127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, HostIPv4, d.Host.Kind)
	require.Equal(t, "127.0.0.1", d.Host.String())
	require.EqualValues(t, 8080, d.Port)
}

func TestParseHostnameBoundaryRules(t *testing.T) {
	_, err := ParseHost("-bad")
	require.Equal(t, StartsWithHyphen, err.(*HostParseError).Kind)

	_, err = ParseHost("bad-")
	require.Equal(t, EndsWithHyphen, err.(*HostParseError).Kind)

	_, err = ParseHost(".bad")
	require.Equal(t, StartsWithPeriod, err.(*HostParseError).Kind)

	_, err = ParseHost("bad.")
	require.Equal(t, EndsWithPeriod, err.(*HostParseError).Kind)

	_, err = ParseHost("bad_host")
	require.Equal(t, InvalidLabel, err.(*HostParseError).Kind)

	labelTooLong := strings.Repeat("a", 64)
	_, err = ParseHost(labelTooLong)
	require.Equal(t, LargeLabel, err.(*HostParseError).Kind)
}

func TestParsePortOutOfRangeFails(t *testing.T) {
	_, err := Parse("example.com:99999")
	require.Error(t, err)
}
