package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/notice"
	"github.com/JakeFAU/secavis-relay/internal/telemetry"
)

const defaultSessionTimeout = 45 * time.Second

// Config controls the Driver.
type Config struct {
	// SessionTimeout bounds a whole automation run, launch to capture.
	SessionTimeout time.Duration
	// MaxParallel caps concurrent browser instances; 0 means unlimited.
	MaxParallel int
}

// Driver implements notice.Retriever on top of a Launcher.
type Driver struct {
	cfg      Config
	launcher Launcher
	parser   notice.Parser
	waiter   Waiter
	limiter  chan struct{}
	logger   *zap.Logger
}

// NewDriver wires a driver. waiter may be nil.
func NewDriver(cfg Config, launcher Launcher, parser notice.Parser, waiter Waiter, logger *zap.Logger) (*Driver, error) {
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Driver{
		cfg:      cfg,
		launcher: launcher,
		parser:   parser,
		waiter:   waiter,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Retrieve runs navigate, scrape, fill, submit, parse and capture in order.
// The browser instance is closed on every return path once launched.
func (d *Driver) Retrieve(ctx context.Context, formURL string, ref notice.Reference) (notice.Result, error) {
	if err := d.acquire(ctx); err != nil {
		return notice.Result{}, retrievalErr("acquire session slot", err)
	}
	defer d.release()

	if d.waiter != nil {
		if err := d.waiter.Wait(ctx, formURL); err != nil {
			return notice.Result{}, retrievalErr("rate limit", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.sessionTimeout())
	defer cancel()

	session, err := d.launcher.Launch(ctx)
	if err != nil {
		return notice.Result{}, retrievalErr("launch browser", err)
	}
	telemetry.IncActiveSessions()
	defer func() {
		telemetry.DecActiveSessions()
		if cerr := session.Close(); cerr != nil {
			d.logger.Warn("browser close failed", zap.Error(cerr))
		}
	}()

	return d.run(ctx, session, formURL, ref)
}

func (d *Driver) run(ctx context.Context, session Session, formURL string, ref notice.Reference) (notice.Result, error) {
	logger := d.logger.With(zap.Stringer("reference", ref))

	if err := session.Open(ctx, formURL); err != nil {
		return notice.Result{}, retrievalErr("open form", err)
	}

	form, err := session.ScrapeForm(ctx)
	if err != nil {
		return notice.Result{}, retrievalErr("scrape form", err)
	}
	if form.Action == "" {
		return notice.Result{}, retrievalErr("scrape form", errors.New("form has no submission target"))
	}
	logger.Debug("form scraped", zap.String("action", form.Action), zap.Int("fields", len(form.Fields)))

	form.Set(FiscalIDField, ref.FiscalID)
	form.Set(NoticeRefField, ref.NoticeRef)

	page, err := session.Submit(ctx, form)
	if err != nil {
		return notice.Result{}, retrievalErr("submit form", err)
	}
	logger.Debug("form submitted", zap.String("url", page.URL), zap.Int("status", page.StatusCode))

	result, err := d.parser.Parse(page.HTML, ref.Year())
	if err != nil {
		if errors.Is(err, notice.ErrInvalidCredentials) {
			return notice.Result{}, &notice.Error{Kind: notice.KindNotFound, Op: "parse result", Err: err}
		}
		return notice.Result{}, retrievalErr("parse result", err)
	}

	capture, err := session.Capture(ctx)
	if err != nil {
		return notice.Result{}, retrievalErr("capture page", err)
	}
	return notice.WithCapture(result, capture), nil
}

func (d *Driver) acquire(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	select {
	case d.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session slot wait canceled: %w", ctx.Err())
	}
}

func (d *Driver) release() {
	if d.limiter == nil {
		return
	}
	select {
	case <-d.limiter:
	default:
	}
}

func (d *Driver) sessionTimeout() time.Duration {
	if d.cfg.SessionTimeout > 0 {
		return d.cfg.SessionTimeout
	}
	return defaultSessionTimeout
}

func retrievalErr(op string, err error) error {
	return &notice.Error{Kind: notice.KindRetrieval, Op: op, Err: err}
}
