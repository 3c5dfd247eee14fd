package metrics

import (
	"context"
	"net/http"
	"time"
)

// Recorder is the metrics sink injected into application components.
// Implementations own their lifecycle: Start begins background flushing,
// Flush drains anything queued, Shutdown stops the recorder.
//
// Counters are queued rather than applied inline so hot paths never touch
// the registry directly; histograms are observed synchronously since they
// are only used on already-slow I/O paths.
type Recorder interface {
	IncWebhook(provider, status string)
	IncParseOutcome(outcome string)
	IncInboundProcessed(branch, status string)
	IncSend(backend, status string)
	ObserveSendDuration(backend string, d time.Duration)
	IncJobRun(job, status string)
	ObserveJobDuration(job string, d time.Duration)

	Start(ctx context.Context)
	Flush()
	Shutdown(ctx context.Context) error

	// Handler exposes the scrape endpoint for this recorder's registry.
	Handler() http.Handler
}

// Noop is a Recorder that discards everything. Tests substitute it for the
// Prometheus recorder.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) IncWebhook(string, string)                  {}
func (*Noop) IncParseOutcome(string)                     {}
func (*Noop) IncInboundProcessed(string, string)         {}
func (*Noop) IncSend(string, string)                     {}
func (*Noop) ObserveSendDuration(string, time.Duration)  {}
func (*Noop) IncJobRun(string, string)                   {}
func (*Noop) ObserveJobDuration(string, time.Duration)   {}
func (*Noop) Start(context.Context)                      {}
func (*Noop) Flush()                                     {}
func (*Noop) Shutdown(context.Context) error             { return nil }
func (*Noop) Handler() http.Handler                      { return http.NotFoundHandler() }
