// Package authsession provides the client side of a bearer-token session:
// tracking access token expiry, renewing it before it lapses, and tearing the
// session down consistently when it cannot be renewed.
//
// The root package holds the pieces shared by every client flavour: the
// configuration, the backend error codes and their user-facing messages, the
// list of authentication endpoints and the logout reasons. The machinery
// itself lives in the client package, and the grpc package bridges it to
// gRPC client connections.
//
// # Architecture
//
// TokenStore: persists the access/refresh pair. Memory, file, GORM, Datastore
// and Redis implementations are provided (client and client/stores/...).
//
// Refresher: exchanges the refresh token for a new pair. Concurrent callers
// share a single in-flight request.
//
// Monitor: polls the access token expiry, warns the user inside a configurable
// window and forces a logout exactly once when the token lapses.
//
// ActivityRenewal: renews the pair silently when the user is active and the
// token is close to expiry.
//
// Transport: an http.RoundTripper that attaches the bearer token, retries a
// request once after a refresh on 401 and forces a logout otherwise.
//
// # Basic Usage
//
//	cfg := authsession.DefaultConfig()
//	cfg.BaseURL = "https://api.example.com/api/v1"
//
//	store := client.NewMemoryTokenStore()
//	sess := client.NewSession(cfg, store,
//	    client.WithNotifier(myNotifier),
//	    client.WithNavigator(myNavigator),
//	    client.WithLogger(logger),
//	)
//	sess.Init(ctx)
//	defer sess.Dispose()
//
//	if _, err := sess.Login(ctx, email, password); err != nil {
//	    return err
//	}
//	resp, err := sess.HTTPClient().Get(sess.URL("/me"))
//
// # Testing
//
// The authsessiontest package runs an in-process backend implementing the
// consumed contract (login, refresh, logout and a few protected routes) on
// top of httptest, so the whole lifecycle can be exercised without a network.
package authsession
