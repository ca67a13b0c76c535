// Command authsession is an interactive session client for a backend that
// speaks the /auth contract. Every line typed counts as user activity, so
// the session renews itself while the operator is working.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/panyam/authsession"
	"github.com/panyam/authsession/client"
	"github.com/panyam/authsession/client/stores/fs"
)

const usage = `commands:
  login <email> <password>   sign in
  get <path>                 authenticated GET, path relative to the base URL
  refresh                    renew the tokens now
  whoami                     show the signed-in user and token expiry
  logout                     sign out
  quit                       exit (tokens are kept)`

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := authsession.MustLoad(configPath)

	logger, err := authsession.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

// syncWriter serializes writes from the command loop and the logout hook,
// which runs on the monitor goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func run(ctx context.Context, cfg authsession.Config, logger *zap.Logger, in io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := &syncWriter{w: w}

	store, err := fs.NewFSTokenStore(cfg.Store.Path, cfg.Store.AppName, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	logger.Info("using token store", zap.String("path", store.Path()))

	reg := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	feed := client.NewActivityFeed()
	sess := client.NewSession(cfg, store,
		client.WithLogger(logger),
		client.WithNotifier(client.NewLogNotifier(logger.Named("notice"))),
		client.WithMetrics(reg),
		client.WithActivitySources(feed),
		client.WithOnLogout(func(reason authsession.LogoutReason) {
			fmt.Fprintf(out, "signed out (%s)\n", reason)
		}),
	)
	sess.Init(ctx)
	defer sess.Dispose()

	if email, password := os.Getenv("AUTHSESSION_EMAIL"), os.Getenv("AUTHSESSION_PASSWORD"); email != "" && password != "" {
		if pair, _ := store.Load(ctx); pair.IsEmpty() {
			if _, err := sess.Login(ctx, email, password); err != nil {
				logger.Warn("login from environment failed", zap.Error(err))
			}
		}
	}

	lines := readLines(ctx, in)

	fmt.Fprintln(out, usage)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			feed.Emit(client.Activity{Kind: client.ActivityKey, Detail: "stdin"})
			if done := execute(ctx, sess, line, out); done {
				return nil
			}
		}
	}
}

// readLines delivers the lines of in until EOF or until ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// execute runs one command line and reports whether the loop should stop.
func execute(ctx context.Context, sess *client.Session, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "login":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: login <email> <password>")
			return false
		}
		resp, err := sess.Login(ctx, fields[1], fields[2])
		if err != nil {
			fmt.Fprintf(out, "login failed: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "signed in as %s\n", resp.User.Email)

	case "get":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: get <path>")
			return false
		}
		get(ctx, sess, fields[1], out)

	case "refresh":
		if sess.RefreshNow(ctx) {
			fmt.Fprintln(out, "tokens renewed")
		} else {
			fmt.Fprintln(out, "refresh failed")
		}

	case "whoami":
		whoami(ctx, sess, out)

	case "logout":
		sess.Logout(ctx)

	case "quit", "exit":
		return true

	default:
		fmt.Fprintln(out, usage)
	}
	return false
}

func get(ctx context.Context, sess *client.Session, path string, out io.Writer) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.URL(path), nil)
	if err != nil {
		fmt.Fprintf(out, "bad request: %v\n", err)
		return
	}
	resp, err := sess.HTTPClient().Do(req)
	if err != nil {
		fmt.Fprintf(out, "request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Fprintln(out, resp.Status)
	_, _ = io.Copy(out, resp.Body)
	fmt.Fprintln(out)
}

func whoami(ctx context.Context, sess *client.Session, out io.Writer) {
	pair, err := sess.Store().Load(ctx)
	if err != nil {
		fmt.Fprintf(out, "failed to read tokens: %v\n", err)
		return
	}
	if pair.IsEmpty() {
		fmt.Fprintln(out, "not signed in")
		return
	}
	if u, ok := sess.State().User(); ok {
		fmt.Fprintf(out, "user: %s <%s>\n", u.Name, u.Email)
	}
	if exp, ok := pair.ExpiresAt(); ok {
		fmt.Fprintf(out, "access token expires %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
	} else {
		fmt.Fprintln(out, "access token expiry unknown")
	}
}
