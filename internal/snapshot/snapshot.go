// Package snapshot builds the structured request capture stored with every
// event. Session and auth cookies are redacted before anything is stored:
// a blacklisted cookie value must never appear anywhere in the snapshot,
// including the rebuilt Cookie header.
package snapshot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Snapshot is the capture of a request at failure time. Every value is a
// repr-string, never re-parsed on read.
type Snapshot struct {
	Get     map[string]string `json:"GET"`
	Post    map[string]string `json:"POST"`
	Files   map[string]string `json:"FILES"`
	Meta    map[string]string `json:"META"`
	Cookies map[string]string `json:"COOKIES"`
}

// Build captures GET params, POST params, uploaded file field names, headers
// and whitelisted cookies from the request. It never reads the request body:
// POST/FILES reflect whatever the handler had already parsed. Headers are
// walked in sorted key order so the capture is deterministic.
func Build(r *http.Request, cookieBlacklist []string) *Snapshot {
	s := &Snapshot{
		Get:     map[string]string{},
		Post:    map[string]string{},
		Files:   map[string]string{},
		Meta:    map[string]string{},
		Cookies: map[string]string{},
	}

	blacklist := make(map[string]struct{}, len(cookieBlacklist))
	for _, name := range cookieBlacklist {
		blacklist[name] = struct{}{}
	}

	for name, values := range r.URL.Query() {
		s.Get[name] = repr(values)
	}

	for name, values := range r.PostForm {
		s.Post[name] = repr(values)
	}
	if r.MultipartForm != nil {
		for field, headers := range r.MultipartForm.File {
			names := make([]string, 0, len(headers))
			for _, fh := range headers {
				names = append(names, fh.Filename)
			}
			s.Files[field] = repr(names)
		}
	}

	allowed := make([]*http.Cookie, 0, len(r.Cookies()))
	for _, c := range r.Cookies() {
		if _, banned := blacklist[c.Name]; banned {
			continue
		}
		s.Cookies[c.Name] = strconv.Quote(c.Value)
		allowed = append(allowed, c)
	}

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "Cookie" {
			// Rebuilt from the whitelisted cookies only, never copied
			// verbatim, so blacklisted values cannot leak through.
			s.Meta[k] = strconv.Quote(joinCookies(allowed))
			continue
		}
		s.Meta[k] = repr(r.Header[k])
	}
	s.Meta["Host"] = strconv.Quote(r.Host)
	s.Meta["Remote-Addr"] = strconv.Quote(r.RemoteAddr)

	return s
}

// JSON serializes the snapshot for storage.
func (s *Snapshot) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// Repr is the diagnostic one-line form of a request stored alongside the
// structured snapshot.
func Repr(r *http.Request) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s host=%s remote=%s",
		r.Method, r.URL.RequestURI(), r.Proto, r.Host, r.RemoteAddr))
}

func repr(values []string) string {
	if len(values) == 1 {
		return strconv.Quote(values[0])
	}
	return strconv.Quote(strings.Join(values, ", "))
}

func joinCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
