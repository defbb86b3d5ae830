package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// TooManyRequestsMessage is the error text of a rejected request
const TooManyRequestsMessage = "Too many requests"

// Rate limit response headers
const (
	HeaderRetryAfter = "Retry-After"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

// ErrorBody is the JSON body of a rejected request
type ErrorBody struct {
	Error string `json:"error"`
}

// Response is a rejection produced when a request exceeds its limit
type Response struct {
	StatusCode int
	Header     http.Header
	Body       ErrorBody
}

// NewResponse builds the 429 response for info. Retry-After holds the
// number of seconds from now until the window resets.
func NewResponse(info Info, now time.Time) *Response {
	header := make(http.Header)
	SetHeaders(header, info)
	header.Set(HeaderRetryAfter, strconv.FormatInt(max(0, info.Reset-now.Unix()), 10))
	header.Set("Content-Type", "application/json; charset=utf-8")

	return &Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     header,
		Body:       ErrorBody{Error: TooManyRequestsMessage},
	}
}

// SetHeaders sets the X-RateLimit headers describing info
func SetHeaders(header http.Header, info Info) {
	header.Set(HeaderLimit, strconv.Itoa(info.Total))
	header.Set(HeaderRemaining, strconv.Itoa(info.Remaining))
	header.Set(HeaderReset, strconv.FormatInt(info.Reset, 10))
}

// Write sends the response to w
func (r *Response) Write(w http.ResponseWriter) error {
	for key, values := range r.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(r.StatusCode)
	return json.NewEncoder(w).Encode(r.Body)
}

// Guard checks r and returns nil when the request may proceed, or the 429
// response to send. Disabled limiters always return nil.
func (l *Limiter) Guard(r *http.Request) *Response {
	result := l.Check(r.Context(), RequestFromHTTP(r))
	if result.Admitted() {
		return nil
	}
	return l.Reject(result.Info)
}

// Reject builds the 429 response for info using the limiter's clock
func (l *Limiter) Reject(info Info) *Response {
	return NewResponse(info, l.now())
}

// WithRateLimit builds a limiter from store and config and returns its Guard
func WithRateLimit(store Store, config Config, opts ...Option) (func(*http.Request) *Response, error) {
	limiter, err := NewLimiter(store, config, opts...)
	if err != nil {
		return nil, err
	}
	return limiter.Guard, nil
}
