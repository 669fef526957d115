package portal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

const (
	defaultCaptureQuality = 90
	formContentType       = "application/x-www-form-urlencoded"
)

// scrapeFormScript collects the named elements of the identification form.
// %s is replaced with the JSON-quoted container id.
const scrapeFormScript = `(function(id) {
	var form = document.getElementById(id);
	if (!form) { return {found: false, action: "", fields: {}}; }
	var fields = {};
	for (var i = 0; i < form.elements.length; i++) {
		var e = form.elements[i];
		if (e.name) { fields[e.name] = e.value; }
	}
	return {found: true, action: form.action || "", fields: fields};
})(%s)`

// ChromeConfig controls browser instances started by ChromeLauncher.
type ChromeConfig struct {
	ExecPath       string
	UserAgent      string
	Headless       bool
	CaptureQuality int
}

// ChromeLauncher starts one Chrome process per Launch call.
type ChromeLauncher struct {
	cfg    ChromeConfig
	logger *zap.Logger
}

// NewChromeLauncher validates cfg and returns a launcher.
func NewChromeLauncher(cfg ChromeConfig, logger *zap.Logger) (*ChromeLauncher, error) {
	if cfg.CaptureQuality < 0 || cfg.CaptureQuality >= 100 {
		return nil, fmt.Errorf("capture quality must be in [0,100), got %d", cfg.CaptureQuality)
	}
	if cfg.CaptureQuality == 0 {
		cfg.CaptureQuality = defaultCaptureQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeLauncher{cfg: cfg, logger: logger}, nil
}

// Launch starts a browser bound to ctx. Cancelling ctx or calling Close on
// the returned session terminates the process.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:     taskCtx,
		cfg:     l.cfg,
		logger:  l.logger,
		cancels: []context.CancelFunc{taskCancel, allocCancel},
	}
	chromedp.ListenTarget(taskCtx, s.observe)

	// The first Run starts the browser process.
	if err := chromedp.Run(taskCtx, s.networkSetupAction()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type pendingPost struct {
	body string
}

type chromeSession struct {
	ctx     context.Context
	cfg     ChromeConfig
	logger  *zap.Logger
	cancels []context.CancelFunc

	mu      sync.Mutex
	pending *pendingPost

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) Open(ctx context.Context, url string) error {
	s.logger.Debug("opening form", zap.String("url", url))
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) ScrapeForm(ctx context.Context) (notice.FormState, error) {
	var scraped struct {
		Found  bool              `json:"found"`
		Action string            `json:"action"`
		Fields map[string]string `json:"fields"`
	}
	script, err := formScript(FormContainerID)
	if err != nil {
		return notice.FormState{}, err
	}
	if err := s.run(ctx,
		chromedp.WaitReady(FormContainerID, chromedp.ByID),
		chromedp.Evaluate(script, &scraped),
	); err != nil {
		return notice.FormState{}, err
	}
	if !scraped.Found {
		return notice.FormState{}, fmt.Errorf("form %q not found", FormContainerID)
	}
	return notice.FormState{Action: scraped.Action, Fields: scraped.Fields}, nil
}

// Submit intercepts the next document request and rewrites it into a POST
// carrying the encoded form.
func (s *chromeSession) Submit(ctx context.Context, form notice.FormState) (notice.RawPage, error) {
	if err := ctx.Err(); err != nil {
		return notice.RawPage{}, err
	}
	pattern := &fetch.RequestPattern{
		URLPattern:   "*",
		ResourceType: network.ResourceTypeDocument,
		RequestStage: fetch.RequestStageRequest,
	}
	if err := chromedp.Run(s.ctx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{pattern})); err != nil {
		return notice.RawPage{}, fmt.Errorf("enable interception: %w", err)
	}
	s.setPending(&pendingPost{body: form.Encode()})

	resp, err := chromedp.RunResponse(s.ctx, chromedp.Navigate(form.Action))
	s.setPending(nil)
	if disableErr := chromedp.Run(s.ctx, fetch.Disable()); disableErr != nil {
		s.logger.Debug("disable interception failed", zap.Error(disableErr))
	}
	if err != nil {
		return notice.RawPage{}, fmt.Errorf("%w: %v", ErrPost, err)
	}
	if resp == nil || resp.Status >= http.StatusBadRequest {
		status := int64(0)
		if resp != nil {
			status = resp.Status
		}
		return notice.RawPage{}, fmt.Errorf("%w: status %d", ErrPost, status)
	}

	page := notice.RawPage{URL: resp.URL, StatusCode: int(resp.Status)}
	if err := s.run(ctx, chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery)); err != nil {
		return notice.RawPage{}, fmt.Errorf("read content: %w", err)
	}
	return page, nil
}

func (s *chromeSession) Capture(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, s.cfg.CaptureQuality)); err != nil {
		return nil, fmt.Errorf("full screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("cancel browser: %w", err)
		}
		for _, cancel := range s.cancels {
			cancel()
		}
	})
	return s.closeErr
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(s.ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (s *chromeSession) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *chromeSession) setPending(p *pendingPost) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

func (s *chromeSession) takePending() *pendingPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// observe logs diagnostics and resumes intercepted requests. Commands are
// issued from a goroutine because the listener must not block.
func (s *chromeSession) observe(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request != nil {
			s.logger.Debug("requesting", zap.String("url", e.Request.URL))
		}
	case *network.EventLoadingFailed:
		s.logger.Warn("resource load failed",
			zap.String("type", string(e.Type)),
			zap.String("error", e.ErrorText),
			zap.Bool("canceled", e.Canceled),
		)
	case *runtime.EventConsoleAPICalled:
		s.logger.Debug("console", zap.String("level", string(e.Type)), zap.Strings("args", consoleArgs(e.Args)))
	case *fetch.EventRequestPaused:
		go s.resume(e)
	}
}

func (s *chromeSession) resume(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(s.ctx, c.Target)

	cont := fetch.ContinueRequest(e.RequestID)
	if p := s.takePending(); p != nil {
		var headers network.Headers
		if e.Request != nil {
			headers = e.Request.Headers
		}
		cont = cont.
			WithMethod(http.MethodPost).
			WithPostData(base64.StdEncoding.EncodeToString([]byte(p.body))).
			WithHeaders(postHeaders(headers))
	}
	if err := cont.Do(execCtx); err != nil {
		s.logger.Warn("continue request failed", zap.Error(err))
	}
}

func formScript(containerID string) (string, error) {
	quoted, err := json.Marshal(containerID)
	if err != nil {
		return "", fmt.Errorf("quote form id: %w", err)
	}
	return fmt.Sprintf(scrapeFormScript, quoted), nil
}

// postHeaders copies the original request headers, replacing Content-Type.
func postHeaders(src network.Headers) []*fetch.HeaderEntry {
	entries := make([]*fetch.HeaderEntry, 0, len(src)+1)
	for name, value := range src {
		if http.CanonicalHeaderKey(name) == "Content-Type" {
			continue
		}
		entries = append(entries, &fetch.HeaderEntry{Name: name, Value: fmt.Sprint(value)})
	}
	entries = append(entries, &fetch.HeaderEntry{Name: "Content-Type", Value: formContentType})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func consoleArgs(args []*runtime.RemoteObject) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			out = append(out, string(arg.Value))
			continue
		}
		out = append(out, arg.Description)
	}
	return out
}
