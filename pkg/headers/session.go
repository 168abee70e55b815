package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

// Session is a Session header.
type Session struct {
	// session id
	Session string

	// (optional) a timeout
	Timeout *uint
}

// Unmarshal decodes a Session header.
func (h *Session) Unmarshal(v base.HeaderValue) error {
	v0, err := singleValue(v)
	if err != nil {
		return err
	}

	parts := strings.Split(v0, ";")

	h.Session = strings.TrimSpace(parts[0])
	if h.Session == "" {
		return fmt.Errorf("invalid value (%v)", v)
	}

	for _, part := range parts[1:] {
		// remove leading spaces
		part = strings.TrimLeft(part, " ")

		key, strValue, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("invalid value (%v)", v)
		}

		// ignore unknown keys
		if strings.ToLower(key) != "timeout" {
			continue
		}

		iv, err := strconv.ParseUint(strValue, 10, 32)
		if err != nil {
			return err
		}
		uiv := uint(iv)

		h.Timeout = &uiv
	}

	return nil
}

// Marshal encodes a Session header.
func (h Session) Marshal() base.HeaderValue {
	val := h.Session

	if h.Timeout != nil {
		val += ";timeout=" + strconv.FormatUint(uint64(*h.Timeout), 10)
	}

	return base.HeaderValue{val}
}
