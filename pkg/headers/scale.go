package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

// Scale is a Scale header.
type Scale float64

// Unmarshal decodes a Scale header.
func (h *Scale) Unmarshal(v base.HeaderValue) error {
	v0, err := singleValue(v)
	if err != nil {
		return err
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v0), 64)
	if err != nil {
		return fmt.Errorf("invalid scale (%v)", v0)
	}

	*h = Scale(f)
	return nil
}

// Marshal encodes a Scale header.
func (h Scale) Marshal() base.HeaderValue {
	return base.HeaderValue{strconv.FormatFloat(float64(h), 'f', -1, 64)}
}
