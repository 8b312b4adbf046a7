package port

import "time"

// PipelineMetrics receives counters about the buffering and upload pipeline.
// Implementations must be safe for concurrent use and must not block.
type PipelineMetrics interface {
	EntriesSubmitted(n int)
	EntriesDropped(reason string, n int)
	EntriesFlushed(n int)
	OutfileSealed(reason string)
	BatchUploaded(entries int)
	UploadFailed(operation string)
	SessionRegistered()
	AuthRequested()
	SendCycleObserved(duration time.Duration, err error)
}

// NopPipelineMetrics discards everything.
type NopPipelineMetrics struct{}

func (NopPipelineMetrics) EntriesSubmitted(int)                   {}
func (NopPipelineMetrics) EntriesDropped(string, int)             {}
func (NopPipelineMetrics) EntriesFlushed(int)                     {}
func (NopPipelineMetrics) OutfileSealed(string)                   {}
func (NopPipelineMetrics) BatchUploaded(int)                      {}
func (NopPipelineMetrics) UploadFailed(string)                    {}
func (NopPipelineMetrics) SessionRegistered()                     {}
func (NopPipelineMetrics) AuthRequested()                         {}
func (NopPipelineMetrics) SendCycleObserved(time.Duration, error) {}

// Pipeline metric drop reasons and upload operations.
const (
	DropReasonInvalid = "invalid"
	DropReasonEncode  = "encode"
	DropReasonDecode  = "decode"
	DropReasonClosed  = "closed"

	OperationRegister = "register"
	OperationUpload   = "upload"
	OperationAuth     = "auth"
)

// MultiPipelineMetrics fans out to several sinks.
type MultiPipelineMetrics []PipelineMetrics

func (m MultiPipelineMetrics) EntriesSubmitted(n int) {
	for _, sink := range m {
		sink.EntriesSubmitted(n)
	}
}

func (m MultiPipelineMetrics) EntriesDropped(reason string, n int) {
	for _, sink := range m {
		sink.EntriesDropped(reason, n)
	}
}

func (m MultiPipelineMetrics) EntriesFlushed(n int) {
	for _, sink := range m {
		sink.EntriesFlushed(n)
	}
}

func (m MultiPipelineMetrics) OutfileSealed(reason string) {
	for _, sink := range m {
		sink.OutfileSealed(reason)
	}
}

func (m MultiPipelineMetrics) BatchUploaded(entries int) {
	for _, sink := range m {
		sink.BatchUploaded(entries)
	}
}

func (m MultiPipelineMetrics) UploadFailed(operation string) {
	for _, sink := range m {
		sink.UploadFailed(operation)
	}
}

func (m MultiPipelineMetrics) SessionRegistered() {
	for _, sink := range m {
		sink.SessionRegistered()
	}
}

func (m MultiPipelineMetrics) AuthRequested() {
	for _, sink := range m {
		sink.AuthRequested()
	}
}

func (m MultiPipelineMetrics) SendCycleObserved(duration time.Duration, err error) {
	for _, sink := range m {
		sink.SendCycleObserved(duration, err)
	}
}
