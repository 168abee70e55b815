// Package headers contains various RTSP headers.
package headers

import (
	"fmt"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

// AuthMethod is an authentication method.
type AuthMethod int

const (
	// AuthBasic is the Basic authentication method
	AuthBasic AuthMethod = iota

	// AuthDigest is the Digest authentication method with the MD5 hash
	AuthDigest
)

// String implements fmt.Stringer.
func (m AuthMethod) String() string {
	if m == AuthBasic {
		return "Basic"
	}
	return "Digest"
}

// only MD5 is supported; a missing algorithm means MD5.
func checkAlgorithm(kvs map[string]string) error {
	v, ok := kvs["algorithm"]
	if !ok || strings.EqualFold(v, "md5") {
		return nil
	}
	return fmt.Errorf("unsupported algorithm: %v", v)
}

func optionalParam(kvs map[string]string, key string) *string {
	if v, ok := kvs[key]; ok {
		return &v
	}
	return nil
}

// Authenticate is a WWW-Authenticate or Proxy-Authenticate header.
type Authenticate struct {
	Method AuthMethod
	Realm  string

	// Digest only
	Nonce  string
	Opaque *string
	Stale  *string
}

// Unmarshal decodes a WWW-Authenticate or Proxy-Authenticate header.
func (h *Authenticate) Unmarshal(v base.HeaderValue) error {
	v0, err := singleValue(v)
	if err != nil {
		return err
	}

	scheme, params, err := splitAuthScheme(v0)
	if err != nil {
		return err
	}

	kvs, err := keyValParse(params, ',')
	if err != nil {
		return err
	}

	switch strings.ToLower(scheme) {
	case "basic":
		realm, ok := kvs["realm"]
		if !ok {
			return fmt.Errorf("realm is missing")
		}

		h.Method = AuthBasic
		h.Realm = realm

	case "digest":
		realm, ok1 := kvs["realm"]
		nonce, ok2 := kvs["nonce"]
		if !ok1 || !ok2 {
			return fmt.Errorf("one or more digest fields are missing")
		}

		err = checkAlgorithm(kvs)
		if err != nil {
			return err
		}

		h.Method = AuthDigest
		h.Realm = realm
		h.Nonce = nonce
		h.Opaque = optionalParam(kvs, "opaque")
		h.Stale = optionalParam(kvs, "stale")

	default:
		return fmt.Errorf("invalid method (%s)", scheme)
	}

	return nil
}

// Marshal encodes a WWW-Authenticate or Proxy-Authenticate header.
func (h Authenticate) Marshal() base.HeaderValue {
	if h.Method == AuthBasic {
		return base.HeaderValue{"Basic " + quotedParams("realm", h.Realm)}
	}

	kv := []string{"realm", h.Realm, "nonce", h.Nonce}
	if h.Opaque != nil {
		kv = append(kv, "opaque", *h.Opaque)
	}
	if h.Stale != nil {
		kv = append(kv, "stale", *h.Stale)
	}

	return base.HeaderValue{"Digest " + quotedParams(kv...)}
}
