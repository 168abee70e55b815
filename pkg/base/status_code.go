package base

// StatusCode is the status code of a RTSP response.
type StatusCode int

// status codes handled by the client.
const (
	StatusContinue                  StatusCode = 100
	StatusOK                        StatusCode = 200
	StatusMovedPermanently          StatusCode = 301
	StatusFound                     StatusCode = 302
	StatusBadRequest                StatusCode = 400
	StatusUnauthorized              StatusCode = 401
	StatusForbidden                 StatusCode = 403
	StatusNotFound                  StatusCode = 404
	StatusMethodNotAllowed          StatusCode = 405
	StatusProxyAuthRequired         StatusCode = 407
	StatusSessionNotFound           StatusCode = 454
	StatusMethodNotValidInThisState StatusCode = 455
	StatusUnsupportedTransport      StatusCode = 461
	StatusInternalServerError       StatusCode = 500
	StatusNotImplemented            StatusCode = 501
	StatusServiceUnavailable        StatusCode = 503
)

var statusMessages = map[StatusCode]string{
	StatusContinue:                  "Continue",
	StatusOK:                        "OK",
	StatusMovedPermanently:          "Moved Permanently",
	StatusFound:                     "Found",
	StatusBadRequest:                "Bad Request",
	StatusUnauthorized:              "Unauthorized",
	StatusForbidden:                 "Forbidden",
	StatusNotFound:                  "Not Found",
	StatusMethodNotAllowed:          "Method Not Allowed",
	StatusProxyAuthRequired:         "Proxy Authentication Required",
	StatusSessionNotFound:           "Session Not Found",
	StatusMethodNotValidInThisState: "Method Not Valid In This State",
	StatusUnsupportedTransport:      "Unsupported Transport",
	StatusInternalServerError:       "Internal Server Error",
	StatusNotImplemented:            "Not Implemented",
	StatusServiceUnavailable:        "Service Unavailable",
}

func (c StatusCode) message() string {
	return statusMessages[c]
}

// IsRedirect reports whether the code asks the client to repeat the request
// on the URL in the Location header.
func (c StatusCode) IsRedirect() bool {
	return c == StatusMovedPermanently || c == StatusFound
}
