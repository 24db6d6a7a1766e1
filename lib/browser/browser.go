// Package browser wraps a scripted Chrome session for the storefronts
// whose listings only exist after client-side rendering. The rest of the
// scraping stack stays on plain HTTP; only page loads and scrolling go
// through the driver, parsing is always goquery on the captured HTML.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamefeed.lib.browser")

// ErrScrollExhausted is returned when the page never produced the
// content the scroll loop was waiting for within the attempt cap.
var ErrScrollExhausted = errors.New("scroll attempts exhausted before reaching target content")

const DefaultRemoteURL = "ws://localhost:9222"

type Options struct {
	// Local launches a desktop-resident Chrome instead of attaching to a
	// containerized one over the DevTools websocket.
	Local bool
	// RemoteURL is the DevTools websocket of the containerized browser.
	RemoteURL string
	// PageTimeout bounds each individual driver operation.
	PageTimeout time.Duration
}

type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
	timeout time.Duration
}

// NewSession acquires a browser tab. Callers must Close it on every
// exit path; driver processes leak otherwise.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	timeout := opts.PageTimeout
	if timeout == 0 {
		timeout = time.Second * 60
	}

	var cancels []context.CancelFunc
	var allocCtx context.Context
	if opts.Local {
		var cancel context.CancelFunc
		allocCtx, cancel = chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
		cancels = append(cancels, cancel)
	} else {
		remote := opts.RemoteURL
		if remote == "" {
			remote = DefaultRemoteURL
		}
		var cancel context.CancelFunc
		allocCtx, cancel = chromedp.NewRemoteAllocator(ctx, remote)
		cancels = append(cancels, cancel)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	cancels = append(cancels, cancel)

	// opening a blank tab eagerly surfaces connection errors here
	// instead of in the middle of a scrape
	err := chromedp.Run(browserCtx)
	if err != nil {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
		return nil, err
	}

	return &Session{
		ctx:     browserCtx,
		cancels: cancels,
		timeout: timeout,
	}, nil
}

func (s *Session) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

func (s *Session) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	err := s.run(chromedp.Navigate(url))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load page")
		return err
	}
	return nil
}

// ScrollBottom scrolls to the end of the page and gives scripts a
// moment to append content.
func (s *Session) ScrollBottom(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ScrollBottom")
	defer span.End()

	err := s.run(
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Millisecond*600),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scroll")
		return err
	}
	return nil
}

// Document captures the current page HTML and parses it.
func (s *Session) Document(ctx context.Context) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "Document")
	defer span.End()

	var html string
	err := s.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to capture html")
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ScrollUntil keeps scrolling to the bottom of the page until `found`
// reports the document contains what the caller is waiting for, or
// maxAttempts scrolls have happened, in which case ErrScrollExhausted
// is returned. The document of the last scroll is always returned so
// partial content can still be used by callers that tolerate it.
func (s *Session) ScrollUntil(ctx context.Context, maxAttempts int, found func(*goquery.Document) bool) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "ScrollUntil")
	defer span.End()
	span.SetAttributes(attribute.Int("max_attempts", maxAttempts))

	var doc *goquery.Document
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var err error
		doc, err = s.Document(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to capture document")
			return nil, err
		}
		if found(doc) {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return doc, nil
		}

		err = s.ScrollBottom(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scroll")
			return nil, err
		}
		slog.DebugContext(ctx, "scrolled for more results", "attempt", attempt)
	}

	span.SetStatus(codes.Error, ErrScrollExhausted.Error())
	return doc, ErrScrollExhausted
}
