package utils

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/realclientip/realclientip-go"
)

type HttpRes struct {
	Message    string `json:"message,omitempty" example:"status ok"`
	StatusCode int    `json:"statusCode,omitempty" example:"200"`
}

func HttpResError(errMsg string, statusCode int) (int, HttpRes) {
	return statusCode, HttpRes{
		Message:    errMsg,
		StatusCode: statusCode,
	}
}

// ExtractOrigin reduces a URL to scheme://host. Unparseable input is returned as is.
func ExtractOrigin(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// RealIPExtractor resolves the client address behind trusted proxies.
type RealIPExtractor struct {
	strategy realclientip.RightmostTrustedRangeStrategy
}

func NewRealIPExtractor(trustedRanges []string) (*RealIPExtractor, error) {
	ipNets, err := realclientip.AddressesAndRangesToIPNets(trustedRanges...)
	if err != nil {
		return nil, err
	}

	strategy, err := realclientip.NewRightmostTrustedRangeStrategy("X-Forwarded-For", ipNets)
	if err != nil {
		return nil, err
	}
	return &RealIPExtractor{strategy: strategy}, nil
}

var remoteAddrStrategy = realclientip.RemoteAddrStrategy{}

// Extract returns the rightmost untrusted address of X-Forwarded-For with the
// socket peer appended, or the socket peer when there is no forwarding header.
func (e *RealIPExtractor) Extract(request *http.Request) string {
	remoteAddr := remoteAddrStrategy.ClientIP(nil, request.RemoteAddr)
	forwarded := request.Header.Get("X-Forwarded-For")
	if remoteAddr == "" || forwarded == "" {
		return remoteAddr
	}

	headers := request.Header.Clone()
	headers.Set("X-Forwarded-For", strings.Join([]string{forwarded, remoteAddr}, ", "))

	// the strategy ignores its second parameter
	if ip := e.strategy.ClientIP(headers, ""); ip != "" {
		return ip
	}
	return remoteAddr
}
