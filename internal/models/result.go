package models

// Status is the tag of a capability Result.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Source records where a non-failed payload came from.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourceCache    Source = "cache"
)

// Degradation reasons.
const (
	ReasonModelUnavailable = "model_unavailable"
	ReasonStaleCache       = "stale_cache"
)

// Result is the tagged outcome of one capability invocation:
// Success(payload, source), Degraded(payload, reason) or Failed(kind, message).
type Result struct {
	Status    Status    `json:"status"`
	Source    Source    `json:"source,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func Success(payload any, source Source) Result {
	return Result{Status: StatusSuccess, Source: source, Payload: payload}
}

// Degraded results are always served from a fallback path.
func Degraded(payload any, reason string) Result {
	return Result{Status: StatusDegraded, Source: SourceFallback, Payload: payload, Reason: reason}
}

func Failed(kind ErrorKind, message string) Result {
	return Result{Status: StatusFailed, ErrorKind: kind, Message: message}
}

// FailedFromError converts err into a Failed result using its classification.
func FailedFromError(err error) Result {
	return Failed(KindOf(err), MessageOf(err))
}

// Usable reports whether the result carries a payload a consumer can act on.
func (r Result) Usable() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded
}
