package base

import (
	"bufio"
	"fmt"
)

func readBytesLimited(rb *bufio.Reader, delim byte, n int) ([]byte, error) {
	for i := 1; i <= n; i++ {
		byts, err := rb.Peek(i)
		if err != nil {
			return nil, err
		}

		if byts[len(byts)-1] == delim {
			rb.Discard(len(byts)) //nolint:errcheck
			return byts, nil
		}
	}
	return nil, fmt.Errorf("buffer length exceeds %d", n)
}

// readLine reads a line terminated by CRLF or by a bare LF.
// The terminator is not included in the result.
func readLine(rb *bufio.Reader, n int) (string, error) {
	byts, err := readBytesLimited(rb, '\n', n)
	if err != nil {
		return "", err
	}

	byts = byts[:len(byts)-1]
	if len(byts) != 0 && byts[len(byts)-1] == '\r' {
		byts = byts[:len(byts)-1]
	}

	return string(byts), nil
}

// SkipLineBreaks discards any CR or LF that precedes a message.
func SkipLineBreaks(rb *bufio.Reader) error {
	for {
		byts, err := rb.Peek(1)
		if err != nil {
			return err
		}

		if byts[0] != '\r' && byts[0] != '\n' {
			return nil
		}

		rb.Discard(1) //nolint:errcheck
	}
}
