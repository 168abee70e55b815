package auth

import (
	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/headers"
)

// GenerateWWWAuthenticate generates a challenge that offers both the
// Digest and the Basic methods.
func GenerateWWWAuthenticate(realm string, nonce string) base.HeaderValue {
	return append(
		headers.Authenticate{
			Method: headers.AuthDigest,
			Realm:  realm,
			Nonce:  nonce,
		}.Marshal(),
		headers.Authenticate{
			Method: headers.AuthBasic,
			Realm:  realm,
		}.Marshal()...)
}
