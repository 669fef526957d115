// Package pipeline composes the idempotency ledger, the portal driver, the
// finalizer and the intake forwarder behind one fetch-and-register call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/notice"
	"github.com/JakeFAU/secavis-relay/internal/telemetry"
)

// EventRegistered is the event type published after a successful run.
const EventRegistered = "notice.registered"

// Config controls Service behavior.
type Config struct {
	// FormURL is the portal page hosting the identification form.
	FormURL string
	// ArchivePrefix is prepended to archived capture paths.
	ArchivePrefix string
	// Topic receives registration events; empty disables publishing.
	Topic string
}

// Request is one fetch-and-register call. Identifiers are raw caller input.
type Request struct {
	FiscalID  string
	NoticeRef string
	// Forward, when set, delivers the finalized result to the intake service.
	Forward *notice.ForwardTarget
}

// Outcome is the result of a successful call.
type Outcome struct {
	Reference  notice.Reference
	Result     notice.Result
	Forwarded  bool
	CaptureURI string
	// RecordErr is set when the ledger write failed; the result stays valid
	// but the pair is not protected against a repeat.
	RecordErr error
}

// RegisteredEvent is published once a pair has been registered.
type RegisteredEvent struct {
	EventID       string    `json:"eventId"`
	FiscalID      string    `json:"fiscalId"`
	NoticeRef     string    `json:"noticeRef"`
	Forwarded     bool      `json:"forwarded"`
	CaptureSHA256 string    `json:"captureSha256,omitempty"`
	CaptureURI    string    `json:"captureUri,omitempty"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

// Attributes implements pubsub.Attributed.
func (e RegisteredEvent) Attributes() map[string]string {
	return map[string]string{"event_type": EventRegistered}
}

// Deps groups the collaborators of a Service. Forwarder, Archive, Publisher,
// Hasher and IDs are optional.
type Deps struct {
	Store     notice.Store
	Retriever notice.Retriever
	Forwarder notice.Forwarder
	Archive   notice.BlobStore
	Publisher notice.Publisher
	Hasher    notice.Hasher
	Clock     notice.Clock
	IDs       notice.IDGenerator
}

// Service runs the retrieval pipeline.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and constructs a Service.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if strings.TrimSpace(cfg.FormURL) == "" {
		return nil, fmt.Errorf("form url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, cfg: cfg, logger: logger.Named("pipeline")}, nil
}

// ForwardingEnabled reports whether a Forwarder is wired.
func (s *Service) ForwardingEnabled() bool {
	return s.deps.Forwarder != nil
}

// FetchAndRegister validates the request, rejects already processed pairs,
// retrieves and finalizes the notice, records the pair, and optionally
// forwards the result. The pair is recorded before forwarding so that of two
// racing requests only one forwards; a failed forward releases the pair.
func (s *Service) FetchAndRegister(ctx context.Context, req Request) (Outcome, error) {
	ref := notice.NewReference(req.FiscalID, req.NoticeRef)
	if err := ref.Validate(); err != nil {
		telemetry.ObserveRetrieval("rejected")
		return Outcome{}, err
	}
	if req.Forward != nil && s.deps.Forwarder == nil {
		telemetry.ObserveRetrieval("rejected")
		return Outcome{}, notice.Errorf(notice.KindValidation, "fetch", "forwarding is not enabled")
	}
	logger := s.logger.With(zap.Stringer("reference", ref))

	seen, err := s.deps.Store.Has(ctx, ref)
	if err != nil {
		telemetry.ObserveStoreError("has")
		telemetry.ObserveRetrieval("failed")
		return Outcome{}, storeErr("has", err)
	}
	if seen {
		telemetry.ObserveRetrieval("duplicate")
		logger.Info("duplicate request rejected")
		return Outcome{}, duplicateErr()
	}

	started := time.Now()
	result, err := s.deps.Retriever.Retrieve(ctx, s.cfg.FormURL, ref)
	telemetry.ObserveRetrievalDuration(time.Since(started))
	if err != nil {
		outcome := "failed"
		if notice.IsKind(err, notice.KindNotFound) {
			outcome = "not_found"
		}
		telemetry.ObserveRetrieval(outcome)
		logger.Warn("retrieval failed", zap.Stringer("kind", notice.KindOf(err)), zap.Error(err))
		return Outcome{}, err
	}
	result = notice.Finalize(result)

	out := Outcome{Reference: ref, Result: result}
	if err := s.deps.Store.Record(ctx, ref); err != nil {
		if errors.Is(err, notice.ErrDuplicate) {
			telemetry.ObserveRetrieval("duplicate")
			logger.Info("lost registration race")
			return Outcome{}, duplicateErr()
		}
		telemetry.ObserveStoreError("record")
		logger.Error("record failed; duplicate protection lost for this pair", zap.Error(err))
		out.RecordErr = storeErr("record", err)
	}

	if req.Forward != nil {
		if err := s.forward(ctx, *req.Forward, ref, result, out.RecordErr == nil); err != nil {
			telemetry.ObserveRetrieval("forward_failed")
			return Outcome{}, err
		}
		out.Forwarded = true
	}

	out.CaptureURI = s.archive(ctx, ref, result)
	s.publish(ctx, out)

	telemetry.ObserveRetrieval("done")
	logger.Info("notice registered", zap.Bool("forwarded", out.Forwarded))
	return out, nil
}

func (s *Service) forward(ctx context.Context, target notice.ForwardTarget, ref notice.Reference, result notice.Result, recorded bool) error {
	// Forwarding runs to completion once started.
	err := s.deps.Forwarder.Forward(context.WithoutCancel(ctx), target, ref, result)
	if err == nil {
		telemetry.ObserveForward("success")
		return nil
	}
	telemetry.ObserveForward("failure")
	s.logger.Warn("forward failed", zap.Stringer("reference", ref), zap.Error(err))
	if recorded {
		// A failed forward does not count as processed.
		if rerr := s.deps.Store.Release(context.WithoutCancel(ctx), ref); rerr != nil {
			telemetry.ObserveStoreError("release")
			s.logger.Error("release after failed forward", zap.Stringer("reference", ref), zap.Error(rerr))
		}
	}
	if notice.KindOf(err) == notice.KindUnknown {
		err = &notice.Error{Kind: notice.KindForward, Op: "forward", Err: err}
	}
	return err
}

func (s *Service) archive(ctx context.Context, ref notice.Reference, result notice.Result) string {
	if s.deps.Archive == nil || result.Capture == "" {
		return ""
	}
	data, err := result.CaptureBytes()
	if err != nil {
		s.logger.Warn("decode capture for archive", zap.Error(err))
		return ""
	}
	uri, err := s.deps.Archive.PutObject(ctx, s.archivePath(ref), "image/jpeg", data)
	if err != nil {
		s.logger.Warn("archive capture failed", zap.Stringer("reference", ref), zap.Error(err))
		return ""
	}
	return uri
}

func (s *Service) archivePath(ref notice.Reference) string {
	name := fmt.Sprintf("%s/%s/%s.jpg", ref.FiscalID, ref.NoticeRef, s.deps.Clock.Now().Format("20060102150405"))
	prefix := strings.Trim(s.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (s *Service) publish(ctx context.Context, out Outcome) {
	if s.cfg.Topic == "" || s.deps.Publisher == nil {
		return
	}
	event := RegisteredEvent{
		FiscalID:     out.Reference.FiscalID,
		NoticeRef:    out.Reference.NoticeRef,
		Forwarded:    out.Forwarded,
		CaptureURI:   out.CaptureURI,
		RegisteredAt: s.deps.Clock.Now(),
	}
	if s.deps.IDs != nil {
		id, err := s.deps.IDs.NewID()
		if err != nil {
			s.logger.Warn("generate event id", zap.Error(err))
		}
		event.EventID = id
	}
	if s.deps.Hasher != nil && out.Result.Capture != "" {
		data, err := out.Result.CaptureBytes()
		if err == nil {
			event.CaptureSHA256, err = s.deps.Hasher.Hash(data)
		}
		if err != nil {
			s.logger.Warn("hash capture for event", zap.Stringer("reference", out.Reference), zap.Error(err))
		}
	}
	if _, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, event); err != nil {
		s.logger.Warn("publish registration event failed", zap.Stringer("reference", out.Reference), zap.Error(err))
	}
}

// Purge clears every recorded pair.
func (s *Service) Purge(ctx context.Context) error {
	if err := s.deps.Store.PurgeAll(ctx); err != nil {
		telemetry.ObserveStoreError("purge")
		return storeErr("purge", err)
	}
	s.logger.Info("ledger purged")
	return nil
}

// Ready checks the ledger connection.
func (s *Service) Ready(ctx context.Context) error {
	return s.deps.Store.Ping(ctx)
}

func duplicateErr() error {
	return &notice.Error{Kind: notice.KindDuplicate, Op: "fetch", Err: notice.ErrDuplicate}
}

func storeErr(op string, err error) error {
	if notice.IsKind(err, notice.KindStore) {
		return err
	}
	return &notice.Error{Kind: notice.KindStore, Op: op, Err: err}
}
