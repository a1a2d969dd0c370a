package ingest

import (
	"context"
	"net/http"
)

type contextKey string

const exceptionFlagKey contextKey = "exception_logged"

// exceptionFlag is the per-request suppression state shared between the two
// sink entry points. Carried by pointer so a mark made during panic
// recovery is visible to the response-completion check.
type exceptionFlag struct {
	logged bool
}

func withExceptionFlag(ctx context.Context, f *exceptionFlag) context.Context {
	return context.WithValue(ctx, exceptionFlagKey, f)
}

// MarkExceptionLogged flags the request so the response-completion hook does
// not double-log the same failure as a generic HTTP error. Recovery layers
// that swallow a panic themselves should call this after invoking
// FailureSink.OnException.
func MarkExceptionLogged(ctx context.Context) {
	if f, ok := ctx.Value(exceptionFlagKey).(*exceptionFlag); ok {
		f.logged = true
	}
}

// ExceptionLogged reports whether an exception was already logged during
// this request's lifetime.
func ExceptionLogged(ctx context.Context) bool {
	f, ok := ctx.Value(exceptionFlagKey).(*exceptionFlag)
	return ok && f.logged
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wires the FailureSink into the request pipeline. Completed
// responses with status > 400 are logged as response-only events, except
// 408, which controlled task retries use as a signal and which would only
// cause contention. A panic is logged through OnException and re-raised
// unchanged so the host's own recovery handling proceeds; the suppression
// flag keeps the subsequent response hook from logging it a second time.
func Middleware(sink FailureSink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flag := &exceptionFlag{}
			r = r.WithContext(withExceptionFlag(r.Context(), flag))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if recovered := recover(); recovered != nil {
					sink.OnException(r, recovered)
					MarkExceptionLogged(r.Context())
					panic(recovered)
				}

				if rec.status > http.StatusBadRequest &&
					rec.status != http.StatusRequestTimeout &&
					!ExceptionLogged(r.Context()) {
					sink.OnResponse(r, rec.status)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
