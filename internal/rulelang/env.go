// Package rulelang compiles the gateway-compatible rule expression grammar
// (Host, PathPrefix, HeaderRegexp, ...) into predicate closures evaluated
// over a request descriptor. Compilation is grounded on github.com/expr-lang/expr:
// the surface syntax is rewritten into a small expr-lang source string and
// compiled once per router at snapshot-build time; evaluation is the hot path.
package rulelang

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Descriptor is the pure, allocation-free view of a request (or TLS
// ClientHello / UDP datagram) that predicates are evaluated against. It
// carries no I/O capability: rule evaluation is a pure function of these
// fields, per §4.1.
type Descriptor struct {
	Host     string
	Path     string // un-decoded path
	RawQuery string
	Method   string
	Headers  http.Header
	ClientIP string
	SNI      string
}

// DescriptorFromRequest builds a Descriptor from an inbound HTTP request.
func DescriptorFromRequest(r *http.Request) Descriptor {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := r.RemoteAddr
	if h, _, err := net.SplitHostPort(ip); err == nil {
		ip = h
	}
	return Descriptor{
		Host:     host,
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		Method:   r.Method,
		Headers:  r.Header,
		ClientIP: ip,
	}
}

// regexCache shares compiled automata across predicates referencing the same
// pattern, per §4.1 ("regex matchers are shared compiled automata").
var regexCache = struct {
	sync.RWMutex
	m map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

func compileCached(pattern string) (*regexp.Regexp, error) {
	regexCache.RLock()
	re, ok := regexCache.m[pattern]
	regexCache.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Lock()
	regexCache.m[pattern] = re
	regexCache.Unlock()
	return re, nil
}

// Env is the expr-lang environment: its methods are the grammar's atoms,
// closed over the Descriptor supplied at Evaluate time via a pointer field
// so the same compiled program can be reused across requests.
type Env struct {
	d *Descriptor
}

func (e Env) Host(names ...string) bool {
	h := strings.ToLower(e.d.Host)
	for _, n := range names {
		if strings.ToLower(n) == h {
			return true
		}
	}
	return false
}

func (e Env) HostRegexp(patterns ...string) bool {
	h := strings.ToLower(e.d.Host)
	for _, p := range patterns {
		re, err := compileCached("(?i)" + p)
		if err != nil {
			continue
		}
		if re.MatchString(h) {
			return true
		}
	}
	return false
}

func (e Env) HostSNI(names ...string) bool {
	sni := strings.ToLower(e.d.SNI)
	for _, n := range names {
		if n == "*" || strings.ToLower(n) == sni {
			return true
		}
	}
	return false
}

func (e Env) Path(paths ...string) bool {
	for _, p := range paths {
		if p == e.d.Path {
			return true
		}
	}
	return false
}

func (e Env) PathPrefix(prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(e.d.Path, p) {
			return true
		}
	}
	return false
}

func (e Env) PathRegexp(patterns ...string) bool {
	for _, p := range patterns {
		re, err := compileCached(p)
		if err != nil {
			continue
		}
		if re.MatchString(e.d.Path) {
			return true
		}
	}
	return false
}

func (e Env) Header(name, value string) bool {
	return e.d.Headers.Get(name) == value
}

func (e Env) HeaderRegexp(name, pattern string) bool {
	re, err := compileCached(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(e.d.Headers.Get(name))
}

func (e Env) Method(methods ...string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, e.d.Method) {
			return true
		}
	}
	return false
}

func (e Env) Query(key, value string) bool {
	q, err := url.ParseQuery(e.d.RawQuery)
	if err != nil {
		return false
	}
	return q.Get(key) == value
}

func (e Env) ClientIP(cidrs ...string) bool {
	ip := net.ParseIP(e.d.ClientIP)
	if ip == nil {
		return false
	}
	for _, c := range cidrs {
		if !strings.Contains(c, "/") {
			if net.ParseIP(c).Equal(ip) {
				return true
			}
			continue
		}
		_, ipnet, err := net.ParseCIDR(c)
		if err == nil && ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
