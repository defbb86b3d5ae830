package handlers

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/acronis/go-appkit/log"
	"github.com/gin-gonic/gin"
)

type ProxyHandler struct {
	proxy  *httputil.ReverseProxy
	logger log.FieldLogger
}

// NewProxyHandler forwards requests to the upstream API at rawURL
func NewProxyHandler(rawURL string, logger log.FieldLogger) (*ProxyHandler, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme must be http or https", rawURL)
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	h := &ProxyHandler{
		proxy:  httputil.NewSingleHostReverseProxy(target),
		logger: logger.With(log.String("upstream", target.Host)),
	}
	h.proxy.ErrorHandler = h.handleError

	return h, nil
}

func (h *ProxyHandler) Forward(c *gin.Context) {
	h.proxy.ServeHTTP(c.Writer, c.Request)
}

func (h *ProxyHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("upstream request failed",
		log.String("path", r.URL.Path),
		log.Error(err),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"Upstream unavailable"}`))
}
