package bridge

import (
	"errors"
	"net/url"
	"strings"
)

// Wildcard disables origin checking when present in an allow-list.
const Wildcard = "*"

// AllowList is the fixed set of origins trusted as message senders.
type AllowList struct {
	origins  map[string]struct{}
	wildcard bool
}

func NewAllowList(origins []string) AllowList {
	a := AllowList{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == Wildcard {
			a.wildcard = true
			continue
		}
		a.origins[NormalizeOrigin(o)] = struct{}{}
	}
	return a
}

func (a AllowList) Wildcard() bool { return a.wildcard }

func (a AllowList) Allows(origin string) bool {
	if a.wildcard {
		return true
	}
	_, ok := a.origins[NormalizeOrigin(origin)]
	return ok
}

// Origins returns the configured origins, wildcard included.
func (a AllowList) Origins() []string {
	out := make([]string, 0, len(a.origins)+1)
	if a.wildcard {
		out = append(out, Wildcard)
	}
	for o := range a.origins {
		out = append(out, o)
	}
	return out
}

// NormalizeOrigin lowercases scheme and host and strips the default port.
// Values that are not absolute URLs (such as "null") are returned trimmed.
func NormalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return originOf(u)
}

func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

var errNoHost = errors.New("frame address has no host")

// TargetOrigin computes where a message for a frame at src may be
// delivered: the origin of an absolute network address, or the
// wildcard for anything else (local files during development).
func TargetOrigin(src string) (string, error) {
	if !strings.HasPrefix(src, "http") {
		return Wildcard, nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errNoHost
	}
	return originOf(u), nil
}
