package httpx

import (
	"net"
	"net/http"
)

// ClientMeta describes the caller of a request for logging.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// ClientIP returns the host part of RemoteAddr. Behind a trusted proxy it
// relies on RealIP having rewritten RemoteAddr first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ClientMetaOf(r *http.Request) ClientMeta {
	ua := r.UserAgent()
	if len(ua) > 256 {
		ua = ua[:256]
	}
	return ClientMeta{IP: ClientIP(r), UserAgent: ua}
}
