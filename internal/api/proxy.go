package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"asmexplorer/internal/compiler"
	"asmexplorer/internal/logging"
)

// proxyPool keeps one reverse proxy per remote endpoint.
type proxyPool struct {
	mu      sync.Mutex
	proxies map[string]*httputil.ReverseProxy
	timeout time.Duration
}

func newProxyPool(timeout time.Duration) *proxyPool {
	return &proxyPool{proxies: make(map[string]*httputil.ReverseProxy), timeout: timeout}
}

func (p *proxyPool) get(remote string) (*httputil.ReverseProxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rp, ok := p.proxies[remote]; ok {
		return rp, nil
	}
	target, err := url.Parse(remote)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid remote %q", remote)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.ProxyError("Forwarding %s to %s failed: %v", r.URL.Path, remote, err)
			writeError(w, compiler.InternalError("remote compiler unavailable", err))
		},
	}
	p.proxies[remote] = rp
	logging.Proxy("Created proxy for %s", remote)
	return rp, nil
}

// forward sends r to remote unchanged and relays the response.
func (p *proxyPool) forward(w http.ResponseWriter, r *http.Request, remote string) {
	rp, err := p.get(remote)
	if err != nil {
		writeError(w, compiler.InternalError("bad remote configuration", err))
		return
	}
	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	logging.ProxyDebug("Forwarding %s %s to %s", r.Method, r.URL.Path, remote)
	rp.ServeHTTP(w, r)
}
