// Package portal drives a headless browser through the notice portal's
// identification form: navigate, scrape the form, fill it, submit it, and
// capture the resulting page.
package portal

import (
	"context"
	"errors"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

// FormContainerID locates the identification form on the portal page. It is
// the only markup-specific value the automation depends on.
const FormContainerID = "j_id_7"

// Field names overwritten before submission.
const (
	FiscalIDField  = FormContainerID + ":spi"
	NoticeRefField = FormContainerID + ":num_facture"
)

// ErrPost marks a form submission whose navigation did not succeed.
var ErrPost = errors.New("post error")

// Launcher starts an isolated browser instance.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one browser instance with a single page. Close terminates the
// instance and must be safe to call more than once.
type Session interface {
	// Open navigates to url and waits for the load-completion signal.
	Open(ctx context.Context, url string) error
	// ScrapeForm reads every named element of the identification form and
	// its submission target.
	ScrapeForm(ctx context.Context) (notice.FormState, error)
	// Submit POSTs the url-encoded form to its target and returns the
	// rendered response. A non-success navigation wraps ErrPost.
	Submit(ctx context.Context, form notice.FormState) (notice.RawPage, error)
	// Capture renders the current page as a full-page JPEG.
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Waiter throttles browser launches against the portal host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}
