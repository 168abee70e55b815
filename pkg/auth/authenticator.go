// Package auth contains utilities to perform authentication.
package auth

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/headers"
)

func md5Hex(in string) string {
	h := md5.New()
	h.Write([]byte(in))
	return hex.EncodeToString(h.Sum(nil))
}

// Authenticator holds a set of credentials and the challenge received
// from a server. It is a value type: copies are independent.
//
// An Authenticator is ready when it contains both credentials and a realm.
// When the nonce is empty, the Basic method is used, otherwise Digest.
type Authenticator struct {
	realm         string
	nonce         string
	username      string
	password      string
	passwordIsMD5 bool
}

// NewAuthenticator allocates an Authenticator with credentials.
func NewAuthenticator(username string, password string) Authenticator {
	return Authenticator{
		username: username,
		password: password,
	}
}

// Realm returns the realm.
func (a Authenticator) Realm() string {
	return a.realm
}

// Nonce returns the nonce.
func (a Authenticator) Nonce() string {
	return a.nonce
}

// Username returns the username.
func (a Authenticator) Username() string {
	return a.username
}

// Password returns the password.
func (a Authenticator) Password() string {
	return a.password
}

// PasswordIsMD5 reports whether the password is already md5(user:realm:pass).
func (a Authenticator) PasswordIsMD5() bool {
	return a.passwordIsMD5
}

// Method returns the authentication method that will be used.
func (a Authenticator) Method() headers.AuthMethod {
	if a.nonce == "" {
		return headers.AuthBasic
	}
	return headers.AuthDigest
}

// HasCredentials reports whether a username or password is set.
func (a Authenticator) HasCredentials() bool {
	return a.username != "" || a.password != ""
}

// IsReady reports whether the Authenticator can produce an Authorization header.
func (a Authenticator) IsReady() bool {
	return a.realm != "" && a.HasCredentials()
}

// SetRealmAndNonce sets realm and nonce. An empty nonce selects the Basic method.
func (a *Authenticator) SetRealmAndNonce(realm string, nonce string) {
	a.realm = realm
	a.nonce = nonce
}

// SetRealmAndRandomNonce sets the realm and generates a fresh nonce.
// It is used by the server role.
func (a *Authenticator) SetRealmAndRandomNonce(realm string) error {
	nonce, err := GenerateNonce()
	if err != nil {
		return err
	}

	a.SetRealmAndNonce(realm, nonce)
	return nil
}

// SetUsernameAndPassword sets credentials.
// When passwordIsMD5 is true, password contains md5(user:realm:pass).
func (a *Authenticator) SetUsernameAndPassword(username string, password string, passwordIsMD5 bool) {
	a.username = username
	a.password = password
	a.passwordIsMD5 = passwordIsMD5
}

// Reset clears every field.
func (a *Authenticator) Reset() {
	*a = Authenticator{}
}

// ComputeDigestResponse computes the Digest response for a method and URI:
// md5(md5(user:realm:pass):nonce:md5(method:uri)).
func (a Authenticator) ComputeDigestResponse(method string, uri string) string {
	var ha1 string
	if a.passwordIsMD5 {
		ha1 = a.password
	} else {
		ha1 = md5Hex(a.username + ":" + a.realm + ":" + a.password)
	}

	return md5Hex(ha1 + ":" + a.nonce + ":" + md5Hex(method+":"+uri))
}

// Authorization builds the value of an Authorization or Proxy-Authorization header.
// It returns false when the Authenticator is not ready.
func (a Authenticator) Authorization(method string, uri string) (base.HeaderValue, bool) {
	if !a.IsReady() {
		return nil, false
	}

	if a.Method() == headers.AuthBasic {
		return headers.Authorization{
			Method:    headers.AuthBasic,
			BasicUser: a.username,
			BasicPass: a.password,
		}.Marshal(), true
	}

	return headers.Authorization{
		Method:   headers.AuthDigest,
		Username: a.username,
		Realm:    a.realm,
		Nonce:    a.nonce,
		URI:      uri,
		Response: a.ComputeDigestResponse(method, uri),
	}.Marshal(), true
}

// ApplyChallenge reads realm and nonce from WWW-Authenticate or
// Proxy-Authenticate header values. Digest is preferred over Basic.
// It returns false when no supported challenge is found.
func (a *Authenticator) ApplyChallenge(v base.HeaderValue) bool {
	var found *headers.Authenticate

	for _, entry := range v {
		var h headers.Authenticate
		err := h.Unmarshal(base.HeaderValue{entry})
		if err != nil {
			continue // ignore unrecognized challenges
		}

		if found == nil || (found.Method == headers.AuthBasic && h.Method == headers.AuthDigest) {
			found = &h
		}
	}

	if found == nil {
		return false
	}

	if found.Method == headers.AuthBasic {
		a.SetRealmAndNonce(found.Realm, "")
	} else {
		a.SetRealmAndNonce(found.Realm, found.Nonce)
	}

	return true
}
