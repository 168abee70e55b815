package headers

import (
	"fmt"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

func singleValue(v base.HeaderValue) (string, error) {
	if len(v) == 0 {
		return "", fmt.Errorf("value not provided")
	}
	if len(v) > 1 {
		return "", fmt.Errorf("value provided multiple times (%v)", v)
	}
	return v[0], nil
}

// splitAuthScheme splits "Scheme params" into its parts.
func splitAuthScheme(v string) (string, string, error) {
	scheme, params, ok := strings.Cut(v, " ")
	if !ok {
		return "", "", fmt.Errorf("unable to split between method and keys (%v)", v)
	}
	return scheme, params, nil
}

// keyValParse parses key=value pairs separated by sep.
// Values can be quoted. Keys are case-insensitive and returned lowercase.
func keyValParse(str string, sep byte) (map[string]string, error) {
	ret := make(map[string]string)
	rest := str

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			return ret, nil
		}

		eq := strings.IndexByte(rest, '=')
		if eq < 0 || strings.IndexByte(rest[:eq], sep) >= 0 {
			return nil, fmt.Errorf("unable to read key (%v)", str)
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]

		var val string

		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("apexes not closed (%v)", str)
			}
			val, rest = rest[1:1+end], rest[2+end:]
		} else {
			end := strings.IndexByte(rest, sep)
			if end < 0 {
				end = len(rest)
			}
			val, rest = strings.TrimSpace(rest[:end]), rest[end:]
		}

		ret[key] = val

		rest = strings.TrimLeft(rest, " ")
		rest = strings.TrimPrefix(rest, string(sep))
	}
}

// quotedParams encodes pairs of keys and values as key="value", joined by commas.
func quotedParams(kv ...string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(kv[i] + `="` + kv[i+1] + `"`)
	}
	return sb.String()
}
