package base

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var casesHeader = []struct {
	name   string
	dec    []byte
	enc    []byte
	header Header
}{
	{
		"single",
		[]byte("Proxy-Require: gzipped-messages\r\n" +
			"Require: implicit-play\r\n" +
			"\r\n"),
		[]byte("Proxy-Require: gzipped-messages\r\n" +
			"Require: implicit-play\r\n" +
			"\r\n"),
		Header{
			"Require":       HeaderValue{"implicit-play"},
			"Proxy-Require": HeaderValue{"gzipped-messages"},
		},
	},
	{
		"multiple",
		[]byte("WWW-Authenticate: Digest realm=\"4419b63f5e51\", " +
			"nonce=\"8b84a3b789283a8bea8da7fa7d41f08b\", stale=\"FALSE\"\r\n" +
			"WWW-Authenticate: Basic realm=\"4419b63f5e51\"\r\n" +
			"\r\n"),
		[]byte("WWW-Authenticate: Digest realm=\"4419b63f5e51\", " +
			"nonce=\"8b84a3b789283a8bea8da7fa7d41f08b\", stale=\"FALSE\"\r\n" +
			"WWW-Authenticate: Basic realm=\"4419b63f5e51\"\r\n" +
			"\r\n"),
		Header{
			"WWW-Authenticate": HeaderValue{
				`Digest realm="4419b63f5e51", nonce="8b84a3b789283a8bea8da7fa7d41f08b", stale="FALSE"`,
				`Basic realm="4419b63f5e51"`,
			},
		},
	},
	{
		"various",
		[]byte("content-type: testing\r\n" +
			"content-length:value\r\n" +
			"www-authenticate: value\r\n" +
			"cseq:  value\r\n" +
			"rtp-info: value\r\n" +
			"call-id: value\r\n" +
			"\r\n"),
		[]byte("CSeq: value\r\n" +
			"Call-ID: value\r\n" +
			"Content-Length: value\r\n" +
			"Content-Type: testing\r\n" +
			"RTP-Info: value\r\n" +
			"WWW-Authenticate: value\r\n" +
			"\r\n"),
		Header{
			"Content-Type":     HeaderValue{"testing"},
			"Content-Length":   HeaderValue{"value"},
			"WWW-Authenticate": HeaderValue{"value"},
			"CSeq":             HeaderValue{"value"},
			"RTP-Info":         HeaderValue{"value"},
			"Call-ID":          HeaderValue{"value"},
		},
	},
}

func TestHeaderUnmarshal(t *testing.T) {
	for _, ca := range casesHeader {
		t.Run(ca.name, func(t *testing.T) {
			var h Header
			err := h.Unmarshal(bufio.NewReader(bytes.NewBuffer(ca.dec)))
			require.NoError(t, err)
			require.Equal(t, ca.header, h)
		})
	}
}

func TestHeaderMarshal(t *testing.T) {
	for _, ca := range casesHeader {
		t.Run(ca.name, func(t *testing.T) {
			var sb strings.Builder
			ca.header.MarshalTo(&sb)
			require.Equal(t, string(ca.enc), sb.String())
		})
	}
}

func TestHeaderBareLineFeeds(t *testing.T) {
	var h Header
	err := h.Unmarshal(bufio.NewReader(bytes.NewBufferString("CSeq: 2\nSession: 1234\n\nrest")))
	require.NoError(t, err)
	require.Equal(t, Header{
		"CSeq":    HeaderValue{"2"},
		"Session": HeaderValue{"1234"},
	}, h)
}

func TestHeaderMarshalOrder(t *testing.T) {
	var sb strings.Builder
	Header{
		"To":      HeaderValue{"b"},
		"Via":     HeaderValue{"a"},
		"Call-ID": HeaderValue{"c"},
	}.MarshalTo(&sb, "Via", "From")
	require.Equal(t, "Via: a\r\nCall-ID: c\r\nTo: b\r\n\r\n", sb.String())
}

func TestHeaderGet(t *testing.T) {
	h := Header{}
	h.Set("content-base", "rtsp://host/")
	v, ok := h.Get("Content-Base")
	require.True(t, ok)
	require.Equal(t, "rtsp://host/", v)

	_, ok = h.Get("Session")
	require.False(t, ok)
}

func TestHeaderUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts []byte
	}{
		{
			"empty",
			[]byte{},
		},
		{
			"missing colon",
			[]byte("Testing\r\n\r\n"),
		},
		{
			"too many entries",
			func() []byte {
				var ret []byte
				for i := 0; i < headerMaxEntryCount+2; i++ {
					ret = append(ret, []byte("Key"+strings.Repeat("a", i)+": v\r\n")...)
				}
				return append(ret, []byte("\r\n")...)
			}(),
		},
		{
			"line too long",
			[]byte("Key: " + strings.Repeat("v", headerMaxLineLength) + "\r\n"),
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Header
			err := h.Unmarshal(bufio.NewReader(bytes.NewBuffer(ca.byts)))
			require.Error(t, err)
		})
	}
}
