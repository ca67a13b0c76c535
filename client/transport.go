package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/panyam/authsession"
)

// HeaderRequestID tags every logical request. A retry keeps the same ID.
const HeaderRequestID = "X-Request-ID"

// UnauthorizedPolicy decides what happens after the backend rejects a call
// as unauthenticated. It is shared by the HTTP transport and the gRPC
// interceptors.
type UnauthorizedPolicy struct {
	refresher *Refresher
	monitor   interface{ OnTokensRenewed() }
	sink      *NotificationSink
	logout    func(authsession.LogoutReason)
	cfg       authsession.SessionConfig
	logger    *zap.Logger
	metrics   *Metrics
}

// Recover handles one unauthenticated response carrying the backend's error
// code and message. It returns true when fresh tokens are stored and the
// call should be sent again. retried tells whether this call was already
// re-sent once; such a call is never retried again.
func (p *UnauthorizedPolicy) Recover(ctx context.Context, code, message string, retried bool) bool {
	if authsession.IsFatalCode(code) {
		p.logger.Info("backend rejected token", zap.String("code", code))
		p.logout(authsession.LogoutUnauthorized)
		p.sink.Error(Notice{
			ID:          NoticeExpired,
			Title:       "Oops!",
			Description: authsession.MessageByCode(code, message),
			Duration:    p.cfg.NoticeDuration,
		})
		return false
	}

	if retried {
		p.logger.Info("request still unauthorized after refresh", zap.String("code", code))
		p.logout(authsession.LogoutUnauthorized)
		p.sink.Error(Notice{
			ID:          NoticeExpired,
			Title:       "Oops!",
			Description: authsession.MessageByCode(string(authsession.CodeTokenExpired), message),
			Duration:    p.cfg.NoticeDuration,
		})
		return false
	}

	// the refresher reports and logs out on its own failures
	if !p.refresher.RefreshNow(ctx) {
		return false
	}
	p.monitor.OnTokensRenewed()
	p.metrics.Retries.Inc()
	return true
}

// Transport is an http.RoundTripper that authenticates requests with the
// stored access token, reports activity and recovers from expired tokens by
// refreshing once and replaying the request.
type Transport struct {
	base   http.RoundTripper
	store  TokenStore
	policy *UnauthorizedPolicy
	signal func(reason string)
	logger *zap.Logger
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}

	authPath := authsession.IsAuthPath(req.URL.Path)

	resp, err := t.send(ctx, req, !authPath)
	if err != nil || authPath || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	be := peekBackendError(resp)
	logger := t.logger.With(zap.String("request_id", req.Header.Get(HeaderRequestID)), zap.String("path", req.URL.Path))
	logger.Debug("request unauthorized", zap.String("code", be.Code))

	if !t.policy.Recover(ctx, be.Code, be.Message, false) {
		return resp, nil
	}

	retry, err := rewind(req)
	if err != nil {
		return resp, nil
	}

	retryResp, err := t.send(ctx, retry, false)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if retryResp.StatusCode != http.StatusUnauthorized {
		resp.Body.Close()
		return retryResp, nil
	}

	be = peekBackendError(retryResp)
	logger.Debug("retry unauthorized", zap.String("code", be.Code))
	t.policy.Recover(ctx, be.Code, be.Message, true)
	resp.Body.Close()
	return retryResp, nil
}

// send attaches the current bearer token to a clone of req.
func (t *Transport) send(ctx context.Context, req *http.Request, signal bool) (*http.Response, error) {
	pair, err := t.store.Load(ctx)
	if err != nil {
		t.logger.Warn("failed to read tokens", zap.Error(err))
	}

	out := req.Clone(ctx)
	if pair.AccessToken != "" {
		out.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		if signal && t.signal != nil {
			t.signal(string(ActivityRequest))
		}
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

// replayable returns a shallow copy of req whose body can be read again
// through GetBody.
func replayable(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return out, nil
}

// rewind prepares req to be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}
