package solarlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodySize caps device answers. Larger bodies are ErrUnexpectedResponse.
var maxBodySize int64 = 4 << 20

// Doer is satisfied by *http.Client. The caller owns it and its connection pool.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Method  string
	Path    string
	Params  url.Values
	Body    string
	Header  http.Header
	Timeout time.Duration
}

type Response struct {
	Status  int
	Header  http.Header
	Cookies []*http.Cookie
	Body    []byte
}

// Transport issues single HTTP requests against the device. It never retries.
type Transport struct {
	baseURL *url.URL
	client  Doer
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

func NewTransport(baseURL *url.URL, client Doer, timeout time.Duration, limiter *rate.Limiter, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.L()
	}
	return &Transport{
		baseURL: baseURL,
		client:  client,
		limiter: limiter,
		timeout: timeout,
		logger:  logger,
	}
}

// Do sends req and reads the whole body. A non-200 status is returned as
// *StatusError together with the response.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("solarlog: waiting to send %s: %w", req.Path, err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u := t.baseURL.JoinPath(req.Path)
	if len(req.Params) > 0 {
		u.RawQuery = req.Params.Encode()
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("solarlog: build request %s: %w", req.Path, err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	started := time.Now()
	res, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classify(ctx, req, err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize+1))
	if err != nil {
		return nil, t.classify(ctx, req, err)
	}
	if int64(len(data)) > maxBodySize {
		return nil, fmt.Errorf("%w: %s body exceeds %d bytes", ErrUnexpectedResponse, req.Path, maxBodySize)
	}
	t.logger.Debug("device request done",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(started)),
	)

	response := &Response{
		Status:  res.StatusCode,
		Header:  res.Header,
		Cookies: res.Cookies(),
		Body:    data,
	}
	if res.StatusCode != http.StatusOK {
		return response, &StatusError{Code: res.StatusCode, Path: req.Path, Body: string(data)}
	}
	return response, nil
}

func (t *Transport) classify(ctx context.Context, req Request, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("solarlog: %s %s: %w", req.Method, req.Path, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s %s on %s: %w", ErrTimeout, req.Method, req.Path, t.baseURL.Host, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s %s on %s: %w", ErrTimeout, req.Method, req.Path, t.baseURL.Host, err)
	}
	return fmt.Errorf("%w: %s %s on %s: %w", ErrConnection, req.Method, req.Path, t.baseURL.Host, err)
}
