package scheduler

import (
	"fmt"
	"time"
)

// Pipeline names one unit of scheduled work.
type Pipeline string

const (
	ContractExpiry Pipeline = "contract_expiry"
	DocumentExpiry Pipeline = "document_expiry"
	PaymentDue     Pipeline = "payment_due"
	Cleanup        Pipeline = "cleanup"
)

// NotificationPipelines run in this order when a tick names no pipelines.
// Cleanup is scheduled on its own.
var NotificationPipelines = []Pipeline{ContractExpiry, DocumentExpiry, PaymentDue}

// AllPipelines lists every pipeline the scheduler knows.
var AllPipelines = []Pipeline{ContractExpiry, DocumentExpiry, PaymentDue, Cleanup}

// ParsePipeline validates a pipeline name.
func ParsePipeline(name string) (Pipeline, error) {
	for _, p := range AllPipelines {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline %q", name)
}

// TierResult is the outcome of one lookahead tier.
type TierResult struct {
	Days    int `json:"days"`
	Created int `json:"created"`
}

// Result is the outcome of one pipeline run within a tick.
type Result struct {
	Pipeline Pipeline      `json:"pipeline"`
	Created  int           `json:"created"`
	Deleted  int64         `json:"deleted,omitempty"`
	Tiers    []TierResult  `json:"tiers,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// OK reports whether the pipeline finished without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report summarizes a tick.
type Report struct {
	TickID  string   `json:"tick_id"`
	Results []Result `json:"results"`
	// Stopped is set when a stop request cut the tick short at a pipeline boundary.
	Stopped bool `json:"stopped"`
}

// Created sums notifications created across all pipelines.
func (r Report) Created() int {
	total := 0
	for _, res := range r.Results {
		total += res.Created
	}
	return total
}

// Failed returns the pipelines that ended with an error.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}
