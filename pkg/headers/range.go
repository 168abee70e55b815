package headers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/mediactl/pkg/base"
)

func parseNPTTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	// hh:mm:ss.fraction
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return 0, fmt.Errorf("invalid npt time (%v)", s)
		}

		hours, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, err
		}

		mins, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || mins > 59 {
			return 0, fmt.Errorf("invalid npt time (%v)", s)
		}

		secs, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || secs < 0 || secs >= 60 {
			return 0, fmt.Errorf("invalid npt time (%v)", s)
		}

		return time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs*float64(time.Second)), nil
	}

	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid npt time (%v)", s)
	}

	return time.Duration(secs * float64(time.Second)), nil
}

func formatNPTTime(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Range is a Range header that uses the Normal Play Time format.
type Range struct {
	// start of the range. When Now is true, the range starts at the
	// current position.
	Start time.Duration
	Now   bool

	// (optional) end of the range
	End *time.Duration
}

// Unmarshal decodes a Range header.
func (h *Range) Unmarshal(v base.HeaderValue) error {
	v0, err := singleValue(v)
	if err != nil {
		return err
	}

	v0, _, _ = strings.Cut(v0, ";")

	kind, val, ok := strings.Cut(v0, "=")
	if !ok {
		return fmt.Errorf("invalid value (%v)", v)
	}

	if strings.ToLower(strings.TrimSpace(kind)) != "npt" {
		return fmt.Errorf("unsupported range type (%v)", kind)
	}

	startStr, endStr, ok := strings.Cut(val, "-")
	if !ok {
		return fmt.Errorf("invalid value (%v)", v)
	}

	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	h.Now = false
	h.Start = 0
	h.End = nil

	switch startStr {
	case "now":
		h.Now = true

	case "":

	default:
		start, err := parseNPTTime(startStr)
		if err != nil {
			return err
		}
		h.Start = start
	}

	if endStr != "" {
		end, err := parseNPTTime(endStr)
		if err != nil {
			return err
		}
		h.End = &end
	}

	return nil
}

// Marshal encodes a Range header.
func (h Range) Marshal() base.HeaderValue {
	ret := "npt="

	if h.Now {
		ret += "now"
	} else {
		ret += formatNPTTime(h.Start)
	}

	ret += "-"

	if h.End != nil {
		ret += formatNPTTime(*h.End)
	}

	return base.HeaderValue{ret}
}
