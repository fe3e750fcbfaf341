package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/tarp-project/tarp/internal/rpcenc"
)

// AsyncHandle is the client-side representation of a submitted ASYNC_RPC
// job: an id plus the server-suggested polling interval.
type AsyncHandle struct {
	client *Client
	name   string
	id     string

	suggestedWait    time.Duration
	suggestedDefault time.Duration
	lastStatus       AsyncStatus
}

// AsyncStatus is the observable state reported by Probe.
type AsyncStatus string

const (
	AsyncInProgress AsyncStatus = "in_progress"
	AsyncCompleted  AsyncStatus = "completed"
)

// Status returns the last status observed by Probe or WaitCycle, without
// making a network call. A handle that has never been probed reports
// AsyncInProgress, matching its state immediately after submission.
func (h *AsyncHandle) Status() AsyncStatus {
	if h.lastStatus == "" {
		return AsyncInProgress
	}
	return h.lastStatus
}

// Probe issues a non-destructive asyncProbe request and returns the job's
// current status and suggested wait.
func (h *AsyncHandle) Probe() (AsyncStatus, time.Duration, error) {
	query := url.Values{"UUID": []string{h.id}}
	res, err := h.client.conn.Get("/asyncProbe?" + query.Encode())
	if err != nil {
		return "", 0, err
	}
	if err := checkEnvelopeStatus(res.StatusCode(), string(res.Header("Retry-After")), res.Body()); err != nil {
		return "", 0, err
	}

	var outer struct {
		Result struct {
			Status        string  `json:"status"`
			SuggestedWait float64 `json:"suggested_wait"`
		} `json:"result"`
	}
	if err := json.Unmarshal(res.Body(), &outer); err != nil {
		return "", 0, fmt.Errorf("tarp: decode asyncProbe envelope: %w", err)
	}

	wait := durationFromSeconds(outer.Result.SuggestedWait)
	h.suggestedWait = wait
	h.lastStatus = AsyncStatus(outer.Result.Status)
	return h.lastStatus, wait, nil
}

// WaitCycle performs a single asyncGet attempt: if the job is still running
// it returns (nil, false, nil); once complete it returns (value, true, nil).
// A failed job surfaces as a non-nil error.
func (h *AsyncHandle) WaitCycle() (any, bool, error) {
	query := url.Values{"UUID": []string{h.id}}
	res, err := h.client.conn.Get("/asyncGet?" + query.Encode())
	if err != nil {
		return nil, false, err
	}

	if res.StatusCode() == 200 {
		var outer struct {
			Result rpcenc.Result `json:"result"`
		}
		if err := json.Unmarshal(res.Body(), &outer); err != nil {
			return nil, false, fmt.Errorf("tarp: decode asyncGet envelope: %w", err)
		}
		value, err := rpcenc.DecodeResult(outer.Result)
		if err != nil {
			return nil, false, err
		}
		h.lastStatus = AsyncCompleted
		return value, true, nil
	}

	if err := checkEnvelopeStatus(res.StatusCode(), string(res.Header("Retry-After")), res.Body()); err != nil {
		if _, inProgress := err.(*OperationInProgress); inProgress {
			h.lastStatus = AsyncInProgress
			return nil, false, nil
		}
		return nil, false, err
	}
	return nil, false, nil
}

// Wait blocks, polling asyncGet at the server-suggested backoff, until the
// job completes, fails, or ctx-less timeout elapses. A zero timeout means
// wait indefinitely.
func (h *AsyncHandle) Wait(timeout time.Duration) (any, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = timeNow().Add(timeout)
	}

	interval := h.suggestedWait
	if interval <= 0 {
		interval = h.suggestedDefault
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		value, done, err := h.WaitCycle()
		if err != nil {
			return nil, err
		}
		if done {
			return value, nil
		}
		if !deadline.IsZero() && timeNow().After(deadline) {
			return nil, fmt.Errorf("tarp: wait for %q timed out after %s", h.name, timeout)
		}
		time.Sleep(interval)
	}
}

// timeNow returns time.Now(). It is a plain function, not a variable, so
// it cannot be replaced at runtime or from tests.
func timeNow() time.Time { return time.Now() }
