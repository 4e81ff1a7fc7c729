package domain

import "time"

// TrackedRequest is the record of one instrumented remote call.
type TrackedRequest struct {
	ID           string        `json:"id"`
	Service      string        `json:"service"`
	Method       string        `json:"method"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	ResponseSize int           `json:"response_size,omitempty"`
}

// Settled reports whether the call has completed.
func (r TrackedRequest) Settled() bool {
	return r.EndedAt != nil
}

// Outcome carries what is known about a call once it settles.
type Outcome struct {
	EndedAt      time.Time
	Success      bool
	Err          error
	ResponseSize int
}

// Apply marks the request settled with the given outcome.
func (r TrackedRequest) Apply(o Outcome) TrackedRequest {
	ended := o.EndedAt
	r.EndedAt = &ended
	r.Duration = max(ended.Sub(r.StartedAt), 0)
	r.Success = o.Success
	r.ResponseSize = o.ResponseSize
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

// LoadingStatus aggregate view of in-flight requests.
// IsLoading is always derived from Count.
type LoadingStatus struct {
	Count     int  `json:"count"`
	IsLoading bool `json:"is_loading"`
}

// NewLoadingStatus derives the status from the number of active requests.
func NewLoadingStatus(count int) LoadingStatus {
	return LoadingStatus{Count: count, IsLoading: count > 0}
}
