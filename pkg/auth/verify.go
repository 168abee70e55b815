package auth

import (
	"fmt"

	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/headers"
)

// Verify verifies the Authorization (or Proxy-Authorization) header value
// sent by a client against the expected credentials and challenge.
func Verify(
	method string,
	authorization base.HeaderValue,
	user string,
	pass string,
	realm string,
	nonce string,
) error {
	var auth headers.Authorization
	err := auth.Unmarshal(authorization)
	if err != nil {
		return err
	}

	switch auth.Method {
	case headers.AuthDigest:
		if auth.Nonce != nonce {
			return fmt.Errorf("wrong nonce")
		}

		if auth.Realm != realm {
			return fmt.Errorf("wrong realm")
		}

		if auth.Username != user {
			return fmt.Errorf("authentication failed")
		}

		expected := Authenticator{
			realm:    realm,
			nonce:    nonce,
			username: user,
			password: pass,
		}

		if auth.Response != expected.ComputeDigestResponse(method, auth.URI) {
			return fmt.Errorf("authentication failed")
		}

	default:
		if auth.BasicUser != user || auth.BasicPass != pass {
			return fmt.Errorf("authentication failed")
		}
	}

	return nil
}

// VerifyRequest verifies the Authorization header of a RTSP request.
func VerifyRequest(req *base.Request, user string, pass string, realm string, nonce string) error {
	return Verify(string(req.Method), req.Header["Authorization"], user, pass, realm, nonce)
}
