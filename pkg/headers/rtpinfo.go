package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

// RTPInfoEntry is an entry of an RTP-Info header.
type RTPInfoEntry struct {
	URL            string
	SequenceNumber *uint16
	Timestamp      *uint32
}

// RTPInfo is a RTP-Info header.
// Entries are listed in the same order of the set up media.
type RTPInfo []*RTPInfoEntry

// Unmarshal decodes a RTP-Info header.
func (h *RTPInfo) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	*h = nil

	// some servers send one header per entry
	for _, val := range v {
		for _, part := range strings.Split(val, ",") {
			e := &RTPInfoEntry{}

			for _, kv := range strings.Split(part, ";") {
				kv = strings.TrimSpace(kv)
				if kv == "" {
					continue
				}

				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("unable to parse key-value (%v)", kv)
				}

				switch strings.ToLower(k) {
				case "url":
					e.URL = v

				case "seq":
					vi, err := strconv.ParseUint(v, 10, 16)
					if err != nil {
						return err
					}
					vi2 := uint16(vi)
					e.SequenceNumber = &vi2

				case "rtptime":
					vi, err := strconv.ParseUint(v, 10, 32)
					if err != nil {
						return err
					}
					vi2 := uint32(vi)
					e.Timestamp = &vi2

				default:
					// ignore non-standard keys
				}
			}

			*h = append(*h, e)
		}
	}

	return nil
}

// Marshal encodes a RTP-Info header.
func (h RTPInfo) Marshal() base.HeaderValue {
	rets := make([]string, len(h))

	for i, e := range h {
		tmp := []string{"url=" + e.URL}

		if e.SequenceNumber != nil {
			tmp = append(tmp, "seq="+strconv.FormatUint(uint64(*e.SequenceNumber), 10))
		}

		if e.Timestamp != nil {
			tmp = append(tmp, "rtptime="+strconv.FormatUint(uint64(*e.Timestamp), 10))
		}

		rets[i] = strings.Join(tmp, ";")
	}

	return base.HeaderValue{strings.Join(rets, ",")}
}
