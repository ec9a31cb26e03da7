package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "digestbot/internal/runtime/supervisor"
	logx "digestbot/pkg/logx"
)

// Config controls the optional pprof HTTP server. The default bind is
// loopback; a non-loopback bind requires Token or AllowInsecure so a
// profiler can't be exposed by a typo.
type Config struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const defaultAddr = "127.0.0.1:6060"

// Service runs the profiler endpoint and survives config reloads: it can
// be started, stopped, and rebound without touching the rest of the app.
type Service struct {
	log logx.Logger

	// transMu serializes Start/Stop transitions.
	transMu sync.Mutex

	mu  sync.Mutex
	cfg Config
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound listen address, or "" while the server is down.
func (s *Service) Addr() string {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}

// Reconfigure applies cfg, starting, stopping, or rebinding the server
// as needed. Called from the daemon's reload loop.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case rebindNeeded(prev, cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// rebindNeeded reports whether the server must be restarted to honor the
// new config. Every serving knob requires it; restarting is cheap.
func rebindNeeded(a, b Config) bool {
	return a.Addr != b.Addr ||
		normalizePrefix(a.Prefix) != normalizePrefix(b.Prefix) ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

// Start brings the server up under a restart loop so it self-heals after
// transient failures. Idempotent; a no-op while disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.transMu.Lock()
	defer s.transMu.Unlock()

	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	sup := rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "pprof"))),
		// Profiling is optional; a broken server must not kill the app.
		rtsup.WithCancelOnError(false),
	)
	s.sup = sup
	s.mu.Unlock()

	sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Stop shuts the server down and waits for it, bounded by ctx. The bound
// address is cleared before Stop returns even if the wait times out.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.transMu.Lock()
	defer s.transMu.Unlock()

	s.mu.Lock()
	sup, srv, ln := s.sup, s.srv, s.ln
	s.sup, s.srv, s.ln = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}

	// Cancel first so the restart loop can't rebind behind the shutdown.
	sup.Cancel()
	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	_ = sup.Wait(ctx)

	// A dying attempt may have republished handles; sweep them.
	s.mu.Lock()
	if s.sup == nil {
		if s.srv != nil {
			_ = s.srv.Close()
		}
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.srv, s.ln = nil, nil
	}
	s.mu.Unlock()
	s.log.Info("pprof stopped")
}

// serveOnce is one attempt of the restart loop: bind, serve, and report
// how serving ended. Cancellation maps to context.Canceled so shutdown
// is not treated as a failure.
func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	if !cur.Enabled {
		return context.Canceled
	}
	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if err := s.checkBind(cur, addr); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	prefix := normalizePrefix(cur.Prefix)
	srv := &http.Server{
		Handler:      buildMux(prefix, cur.Token),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Bounded; Stop does the real graceful shutdown.
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	}()

	s.log.Info("pprof started",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", prefix),
		logx.Bool("token_set", cur.Token != ""),
	)
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv, s.ln = nil, nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("pprof server exited unexpectedly")
	}
	return err
}

// checkBind refuses a tokenless non-loopback bind unless the config says
// it is intentional.
func (s *Service) checkBind(cfg Config, addr string) error {
	if isLoopbackAddr(addr) || cfg.Token != "" {
		return nil
	}
	if !cfg.AllowInsecure {
		s.log.Error("pprof bind refused: non-loopback address needs token or allow_insecure",
			logx.String("addr", addr))
		return errors.New("pprof: refusing non-loopback bind without token")
	}
	s.log.Warn("pprof serving without token on non-loopback address", logx.String("addr", addr))
	return nil
}

func buildMux(prefix, token string) *http.ServeMux {
	auth := func(h http.Handler) http.Handler { return authorize(token, h) }
	base := strings.TrimSuffix(prefix, "/")

	mux := http.NewServeMux()
	mux.Handle("/healthz", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})))
	mux.Handle(prefix, auth(indexAt(prefix)))
	mux.Handle(base+"/cmdline", auth(http.HandlerFunc(hpprof.Cmdline)))
	mux.Handle(base+"/profile", auth(http.HandlerFunc(hpprof.Profile)))
	mux.Handle(base+"/symbol", auth(http.HandlerFunc(hpprof.Symbol)))
	mux.Handle(base+"/trace", auth(http.HandlerFunc(hpprof.Trace)))
	if base != "" {
		mux.Handle(base, http.RedirectHandler(prefix, http.StatusPermanentRedirect))
	}
	return mux
}

// authorize accepts ?token=<t> or Authorization: Bearer <t>. A present
// but wrong query token fails without falling back to the header.
func authorize(token string, next http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				next.ServeHTTP(w, r)
				return
			}
		} else if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
			if strings.TrimSpace(strings.TrimPrefix(ah, "Bearer ")) == tok {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// indexAt serves the pprof index under a custom prefix. net/http/pprof
// assumes it is rooted at /debug/pprof/, so the path is rewritten.
func indexAt(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clone := r.Clone(r.Context())
		clone.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, clone)
	})
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		return "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// isLoopbackAddr reports whether addr (host:port) names a loopback
// interface. An empty host binds all interfaces and is not loopback.
func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	switch {
	case host == "":
		return false
	case strings.EqualFold(host, "localhost"):
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
