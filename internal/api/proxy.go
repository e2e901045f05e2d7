package api

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const maxProxyBodyBytes = 10 << 20

// handleProxy forwards a GET to an allow-listed host. The host must pass
// the configured allow-list, and every address it resolves to must be
// public: otherwise a DNS name pointing at loopback or RFC1918 space
// would turn the proxy into an internal port scanner.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("u")
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Hostname() == "" {
		writeError(s.logger, w, http.StatusBadRequest, "u must be an absolute http(s) URL")
		return
	}

	host := target.Hostname()
	if !s.hostAllowed(host) {
		writeError(s.logger, w, http.StatusForbidden, fmt.Sprintf("host %q not allowed", host))
		return
	}

	ips, err := s.lookupIP(r.Context(), host)
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, fmt.Sprintf("resolve %q: %v", host, err))
		return
	}
	for _, ip := range ips {
		if !isPublicIP(ip) {
			writeError(s.logger, w, http.StatusForbidden, fmt.Sprintf("host %q resolves to a non-public address", host))
			return
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	req.Header.Set("User-Agent", s.cfg.Scraper.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxProxyBodyBytes)); err != nil {
		s.logger.Debug("proxy body copy aborted")
	}
}

func (s *Server) hostAllowed(host string) bool {
	for _, allowed := range s.cfg.Proxy.AllowHosts {
		if strings.EqualFold(host, strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified())
}
