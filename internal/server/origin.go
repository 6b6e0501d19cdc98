package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the allow-list built from Config.AllowedOrigins. Entries
// are compared as lower-case "scheme://host[:port]".
type originPolicy struct {
	any     bool
	allowed map[string]bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]bool, len(origins))}
	for _, entry := range origins {
		entry = strings.TrimSpace(entry)
		switch entry {
		case "":
			continue
		case "*":
			p.any = true
			continue
		}

		canonical, ok := canonicalOrigin(entry)
		if !ok {
			log.Printf("Ignoring invalid origin in configuration: %q", entry)
			continue
		}
		p.allowed[canonical] = true
	}
	return p
}

// canonicalOrigin reduces an origin or URL to its lower-case scheme and host.
func canonicalOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// allows reports whether r may open a WebSocket. Requests without an Origin
// header come from non-browser clients and are let through.
func (p originPolicy) allows(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return true
	}
	canonical, ok := canonicalOrigin(header)
	if !ok {
		return false
	}
	return p.any || p.allowed[canonical]
}

// check is the upgrader's CheckOrigin hook.
func (p originPolicy) check(r *http.Request) bool {
	if p.allows(r) {
		return true
	}
	log.Printf("Blocked WebSocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}
