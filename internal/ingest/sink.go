package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/centaurhq/centaur/internal/fingerprint"
	"github.com/centaurhq/centaur/internal/snapshot"
	"github.com/centaurhq/centaur/internal/stacktrace"
	"github.com/centaurhq/centaur/internal/store"
	"github.com/centaurhq/centaur/pkg/models"
)

// httpFailureKind is the synthetic exception kind for failures that are
// just an HTTP status code, with no recovered panic behind them.
const httpFailureKind = "HTTPResponse"

const maxSummaryLen = 500

// FailureSink receives the host framework's two lifecycle signals. Nothing
// invoked through it may ever propagate a failure back: logging an error
// must not itself break the request being processed.
type FailureSink interface {
	// OnResponse is called after a completed response with a failure
	// status code.
	OnResponse(r *http.Request, status int)
	// OnException is called with a recovered panic before it is re-raised.
	OnException(r *http.Request, recovered any)
}

// UserEmailFunc resolves the acting principal's email from a request.
// Best-effort; return "" for anonymous.
type UserEmailFunc func(r *http.Request) string

// Ingestor implements FailureSink, driving fingerprint derivation, the
// dedup registry and the event recorder.
type Ingestor struct {
	errors   *ErrorStore
	recorder *Recorder
	capturer stacktrace.Capturer

	appVersion      string
	cookieBlacklist []string
	userEmail       UserEmailFunc
}

func NewIngestor(es *ErrorStore, rec *Recorder, cap stacktrace.Capturer, appVersion string, cookieBlacklist []string, userEmail UserEmailFunc) *Ingestor {
	if userEmail == nil {
		userEmail = func(*http.Request) string { return "" }
	}
	return &Ingestor{
		errors:          es,
		recorder:        rec,
		capturer:        cap,
		appVersion:      appVersion,
		cookieBlacklist: cookieBlacklist,
		userEmail:       userEmail,
	}
}

func (in *Ingestor) OnResponse(r *http.Request, status int) {
	level := models.LevelInfo
	if status == http.StatusNotFound {
		level = models.LevelWarning
	}

	signature := fingerprint.RequestSignature(r.URL.Path, r.URL.RawQuery)
	key := fingerprint.Key(httpFailureKind, signature, 0)
	defaults := store.ErrorDefaults{
		Summary:    truncate(fmt.Sprintf("%d at %s", status, r.URL.Path), maxSummaryLen),
		OriginPath: signature,
		Level:      level,
	}

	in.record(r, key, defaults, nil)
}

func (in *Ingestor) OnException(r *http.Request, recovered any) {
	var stackJSON []byte
	var framePaths []string
	originPath, line := "", 0

	cap, err := in.capturer.Capture(recovered)
	if err != nil {
		// Capture failure is soft: the event still gets logged, just
		// without a stack snapshot.
		slog.Error("stack capture failed", "error", err)
	} else {
		framePaths = cap.FramePaths()
		originPath, line = cap.Origin()
		if data, err := marshalCapture(cap); err != nil {
			slog.Error("stack snapshot serialization failed", "error", err)
		} else {
			stackJSON = data
		}
	}

	kind := exceptionKind(recovered)
	key := fingerprint.Key(kind, fingerprint.PathSignature(framePaths), line)
	defaults := store.ErrorDefaults{
		Summary:    truncate(fmt.Sprintf("%s: %v", kind, recovered), maxSummaryLen),
		OriginPath: originPath,
		Level:      models.LevelError,
	}

	in.record(r, key, defaults, stackJSON)
}

// record runs the shared tail of both entry points. Every failure is
// swallowed here with a diagnostic log line; the original request outcome
// must pass through untouched.
func (in *Ingestor) record(r *http.Request, key models.DedupKey, defaults store.ErrorDefaults, stackJSON []byte) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("failure ingestion panicked", "panic", recovered)
		}
	}()

	// The record must survive the client going away mid-request.
	ctx := context.WithoutCancel(r.Context())

	errRow, created, err := in.errors.GetOrCreate(ctx, key, defaults)
	if err != nil {
		slog.Error("error group lookup failed",
			"exception_kind", key.ExceptionKind, "error", err)
		return
	}
	if created {
		slog.Info("new error group",
			"error_id", errRow.ID,
			"exception_kind", errRow.ExceptionKind,
			"level", errRow.Level)
	}

	snap := snapshot.Build(r, in.cookieBlacklist)
	snapJSON, err := snap.JSON()
	if err != nil {
		slog.Error("request snapshot serialization failed", "error", err)
		snapJSON = nil
	}

	event := &models.Event{
		ErrorID:            errRow.ID,
		RequestMethod:      r.Method,
		RequestURL:         r.URL.Path,
		RequestQuerystring: r.URL.RawQuery,
		RequestRepr:        snapshot.Repr(r),
		RequestSnapshot:    snapJSON,
		StackSnapshot:      stackJSON,
		AppVersion:         in.appVersion,
		LoggedInUserEmail:  in.userEmail(r),
	}

	if _, err := in.recorder.Record(ctx, event); err != nil {
		slog.Error("event record failed", "error_id", errRow.ID, "error", err)
	}
}

func exceptionKind(recovered any) string {
	switch v := recovered.(type) {
	case error:
		return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	case string:
		return "panic"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	}
}

func marshalCapture(cap *stacktrace.Capture) ([]byte, error) {
	if cap == nil {
		return nil, nil
	}
	return json.Marshal(cap)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
