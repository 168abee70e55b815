package headers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediactl/pkg/base"
)

func uintPtr(v uint) *uint {
	return &v
}

var casesSession = []struct {
	name string
	vin  base.HeaderValue
	vout base.HeaderValue
	h    Session
}{
	{
		"base",
		base.HeaderValue{`A3eqwsafq3rFASqew`},
		base.HeaderValue{`A3eqwsafq3rFASqew`},
		Session{
			Session: "A3eqwsafq3rFASqew",
		},
	},
	{
		"with timeout",
		base.HeaderValue{`A3eqwsafq3rFASqew;timeout=47`},
		base.HeaderValue{`A3eqwsafq3rFASqew;timeout=47`},
		Session{
			Session: "A3eqwsafq3rFASqew",
			Timeout: uintPtr(47),
		},
	},
	{
		"with timeout and space",
		base.HeaderValue{`A3eqwsafq3rFASqew; timeout=47`},
		base.HeaderValue{`A3eqwsafq3rFASqew;timeout=47`},
		Session{
			Session: "A3eqwsafq3rFASqew",
			Timeout: uintPtr(47),
		},
	},
	{
		"with unknown key",
		base.HeaderValue{`1234;foo=bar;timeout=60`},
		base.HeaderValue{`1234;timeout=60`},
		Session{
			Session: "1234",
			Timeout: uintPtr(60),
		},
	},
}

func TestSessionUnmarshal(t *testing.T) {
	for _, ca := range casesSession {
		t.Run(ca.name, func(t *testing.T) {
			var h Session
			err := h.Unmarshal(ca.vin)
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
		})
	}
}

func TestSessionMarshal(t *testing.T) {
	for _, ca := range casesSession {
		t.Run(ca.name, func(t *testing.T) {
			req := ca.h.Marshal()
			require.Equal(t, ca.vout, req)
		})
	}
}

func TestSessionUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		hv   base.HeaderValue
		err  string
	}{
		{
			"empty",
			base.HeaderValue{},
			"value not provided",
		},
		{
			"2 values",
			base.HeaderValue{"a", "b"},
			"value provided multiple times ([a b])",
		},
		{
			"empty id",
			base.HeaderValue{";timeout=3"},
			"invalid value ([;timeout=3])",
		},
		{
			"missing equal sign",
			base.HeaderValue{"A3eqwsafq3rFASqew;timeout"},
			"invalid value ([A3eqwsafq3rFASqew;timeout])",
		},
		{
			"invalid timeout",
			base.HeaderValue{"A3eqwsafq3rFASqew;timeout=aa"},
			"strconv.ParseUint: parsing \"aa\": invalid syntax",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Session
			err := h.Unmarshal(ca.hv)
			require.EqualError(t, err, ca.err)
		})
	}
}
