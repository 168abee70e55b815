package headers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediactl/pkg/base"
)

func durationPtr(v time.Duration) *time.Duration {
	return &v
}

var casesRange = []struct {
	name string
	vin  base.HeaderValue
	vout base.HeaderValue
	h    Range
}{
	{
		"start only",
		base.HeaderValue{`npt=0.000-`},
		base.HeaderValue{`npt=0.000-`},
		Range{},
	},
	{
		"start and end",
		base.HeaderValue{`npt=10.5-20.25`},
		base.HeaderValue{`npt=10.500-20.250`},
		Range{
			Start: 10500 * time.Millisecond,
			End:   durationPtr(20250 * time.Millisecond),
		},
	},
	{
		"now",
		base.HeaderValue{`npt=now-`},
		base.HeaderValue{`npt=now-`},
		Range{
			Now: true,
		},
	},
	{
		"clock format",
		base.HeaderValue{`npt=01:02:03.5-`},
		base.HeaderValue{`npt=3723.500-`},
		Range{
			Start: time.Hour + 2*time.Minute + 3500*time.Millisecond,
		},
	},
	{
		"with time parameter",
		base.HeaderValue{`npt = 5-;time=19970123T143720Z`},
		base.HeaderValue{`npt=5.000-`},
		Range{
			Start: 5 * time.Second,
		},
	},
}

func TestRangeUnmarshal(t *testing.T) {
	for _, ca := range casesRange {
		t.Run(ca.name, func(t *testing.T) {
			var h Range
			err := h.Unmarshal(ca.vin)
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
		})
	}
}

func TestRangeMarshal(t *testing.T) {
	for _, ca := range casesRange {
		t.Run(ca.name, func(t *testing.T) {
			req := ca.h.Marshal()
			require.Equal(t, ca.vout, req)
		})
	}
}

func TestRangeUnmarshalErrors(t *testing.T) {
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
			"missing type",
			base.HeaderValue{"0-"},
			"invalid value ([0-])",
		},
		{
			"unsupported type",
			base.HeaderValue{"smpte=10:07:00-10:07:33:05.01"},
			"unsupported range type (smpte)",
		},
		{
			"missing dash",
			base.HeaderValue{"npt=10"},
			"invalid value ([npt=10])",
		},
		{
			"invalid start",
			base.HeaderValue{"npt=aa-"},
			"invalid npt time (aa)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Range
			err := h.Unmarshal(ca.hv)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestScale(t *testing.T) {
	var h Scale
	err := h.Unmarshal(base.HeaderValue{" 2.5"})
	require.NoError(t, err)
	require.Equal(t, Scale(2.5), h)
	require.Equal(t, base.HeaderValue{"2.5"}, h.Marshal())

	err = h.Unmarshal(base.HeaderValue{"fast"})
	require.EqualError(t, err, "invalid scale (fast)")
}
