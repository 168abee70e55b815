package base64stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}

	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestReader(t *testing.T) {
	for _, ca := range []struct {
		name   string
		chunks []string
		out    []string
	}{
		{
			"single",
			[]string{"T1BUSU9OUw=="},
			[]string{"OPTIONS"},
		},
		{
			"two writes in a read",
			[]string{"T1BUSU9OUw==UExBWQ=="},
			[]string{"OPTIONS", "PLAY"},
		},
		{
			"write split on a quantum boundary",
			[]string{"T1BU", "SU9OUw=="},
			[]string{"OPT", "IONS"},
		},
		{
			"write split inside a quantum",
			[]string{"T1B", "USU9OUw=="},
			[]string{"OPTIONS"},
		},
		{
			"padding split",
			[]string{"T1BUSU9OUw=", "=UExBWQ=="},
			[]string{"OPTION", "S", "PLAY"},
		},
		{
			"unpadded",
			[]string{"U0VUVVAg"},
			[]string{"SETUP "},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			r := NewReader(&chunkReader{chunks: ca.chunks})

			var out []string
			for {
				buf := make([]byte, 512)
				n, err := r.Read(buf)
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				out = append(out, string(buf[:n]))
			}

			require.Equal(t, ca.out, out)
		})
	}
}

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	n, err := w.Write([]byte("OPTIONS"))
	require.NoError(t, err)
	require.Equal(t, 7, n)

	_, err = w.Write([]byte("PLAY"))
	require.NoError(t, err)

	require.Equal(t, "T1BUSU9OUw==UExBWQ==", buf.String())

	dec, err := io.ReadAll(NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "OPTIONSPLAY", string(dec))
}
