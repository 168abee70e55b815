package headers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

var digestAuthorizationFields = []string{"realm", "username", "nonce", "uri", "response"}

// Authorization is an Authorization or Proxy-Authorization header.
type Authorization struct {
	Method AuthMethod

	// Basic only
	BasicUser string
	BasicPass string

	// Digest only
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
	Opaque   *string
}

func (h *Authorization) unmarshalBasic(params string) error {
	dec, err := base64.StdEncoding.DecodeString(params)
	if err != nil {
		return fmt.Errorf("invalid value")
	}

	user, pass, ok := strings.Cut(string(dec), ":")
	if !ok {
		return fmt.Errorf("invalid value")
	}

	h.Method = AuthBasic
	h.BasicUser, h.BasicPass = user, pass
	return nil
}

func (h *Authorization) unmarshalDigest(params string) error {
	kvs, err := keyValParse(params, ',')
	if err != nil {
		return err
	}

	for _, k := range digestAuthorizationFields {
		if _, ok := kvs[k]; !ok {
			return fmt.Errorf("one or more digest fields are missing")
		}
	}

	err = checkAlgorithm(kvs)
	if err != nil {
		return err
	}

	h.Method = AuthDigest
	h.Realm = kvs["realm"]
	h.Username = kvs["username"]
	h.Nonce = kvs["nonce"]
	h.URI = kvs["uri"]
	h.Response = kvs["response"]
	h.Opaque = optionalParam(kvs, "opaque")
	return nil
}

// Unmarshal decodes an Authorization or Proxy-Authorization header.
func (h *Authorization) Unmarshal(v base.HeaderValue) error {
	v0, err := singleValue(v)
	if err != nil {
		return err
	}

	scheme, params, err := splitAuthScheme(v0)
	if err != nil {
		return err
	}

	switch scheme {
	case "Basic":
		return h.unmarshalBasic(params)

	case "Digest":
		return h.unmarshalDigest(params)
	}

	return fmt.Errorf("invalid method (%s)", scheme)
}

// Marshal encodes an Authorization or Proxy-Authorization header.
func (h Authorization) Marshal() base.HeaderValue {
	if h.Method == AuthBasic {
		return base.HeaderValue{"Basic " +
			base64.StdEncoding.EncodeToString([]byte(h.BasicUser+":"+h.BasicPass))}
	}

	kv := []string{
		"username", h.Username,
		"realm", h.Realm,
		"nonce", h.Nonce,
		"uri", h.URI,
		"response", h.Response,
	}
	if h.Opaque != nil {
		kv = append(kv, "opaque", *h.Opaque)
	}

	return base.HeaderValue{"Digest " + quotedParams(kv...)}
}
