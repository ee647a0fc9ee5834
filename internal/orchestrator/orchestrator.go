// Package orchestrator drives one generation request end-to-end:
// payload build, endpoint resolution, the network call, outcome
// classification, and materialization of the result as a short-lived
// local artifact.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ebookforge/ebookctl/internal/artifacts"
	"github.com/ebookforge/ebookctl/internal/endpoint"
	"github.com/ebookforge/ebookctl/internal/progresslog"
	"github.com/ebookforge/ebookctl/pkg/domain"
)

// ErrInFlight is returned when Submit is called while a previous
// submission has not reached a terminal state.
var ErrInFlight = errors.New("a submission is already in flight")

// connectivityHint is appended to transport-class failures only; a
// server-reported error never carries it.
const connectivityHint = " (check that the generator service is running and that the base URL is reachable)"

// Result is the downloadable outcome of one successful submission. The
// handle expires on the artifact store's schedule whether or not the
// user acted on it.
type Result struct {
	Filename  string
	Handle    *artifacts.Handle
	Delivered string // path the artifact was auto-saved to, empty if that failed
}

// Orchestrator executes submissions one at a time. A second Submit
// while one is in flight is rejected with ErrInFlight.
type Orchestrator struct {
	env    endpoint.Environment
	log    *progresslog.Log
	store  *artifacts.Store
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	inFlight bool
	state    domain.LifecycleState
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient replaces the default client. The default carries no
// timeout: generation is a multi-minute synchronous wait and the
// deadline, if any, belongs to the caller's context.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

func New(env endpoint.Environment, log *progresslog.Log, store *artifacts.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		env:    env,
		log:    log,
		store:  store,
		client: &http.Client{},
		logger: logger,
		state:  domain.StateIdle,
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the lifecycle state of the most recent submission.
func (o *Orchestrator) State() domain.LifecycleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s domain.LifecycleState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Submit runs one submission to a terminal state. On failure the
// returned error carries the same resolved message that was appended
// to the progress log.
func (o *Orchestrator) Submit(ctx context.Context, req domain.SubmissionRequest) (*Result, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrInFlight
	}
	o.inFlight = true
	// Entering Submitting implicitly discards the previous submission's
	// terminal state.
	o.state = domain.StateSubmitting
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	session := uuid.NewString()

	o.log.Clear()
	o.log.Append("Starting ebook generation request...")
	if n := len(req.Files()); n > 0 {
		o.log.Append(fmt.Sprintf("Attaching %d reference file(s).", n))
	}

	target := endpoint.Resolve(o.env)
	o.logger.Info("submitting generation request", "session", session, "endpoint", target, "files", len(req.Files()))

	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, o.fail(session, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, o.fail(session, "failed to build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", contentType)

	o.setState(domain.StateAwaiting)
	o.log.StartHeartbeat()

	resp, err := o.client.Do(httpReq)
	if err != nil {
		msg := err.Error()
		if isTransportError(err) {
			msg += connectivityHint
		}
		return nil, o.fail(session, msg)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, o.fail(session, "failed to read response: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, o.fail(session, classifyFailure(resp.StatusCode, payload))
	}

	filename := extractFilename(resp.Header.Get("Content-Disposition"))
	handle, err := o.store.Put(filename, payload)
	if err != nil {
		return nil, o.fail(session, "failed to store artifact: "+err.Error())
	}

	o.log.StopHeartbeat()
	o.log.Append(fmt.Sprintf("Ebook ready: %s (%d bytes).", filename, len(payload)))

	result := &Result{Filename: filename, Handle: handle}
	dst := strings.TrimSpace(req.Field(domain.FieldOutputPath))
	if dst == "" {
		dst = filename
	}
	if err := deliver(handle.Path, dst); err != nil {
		// Delivery is best effort; the handle stays available as the
		// manual fallback until its scheduled release.
		o.log.Append("Automatic save failed: " + err.Error() + ". Artifact available at " + handle.Path + ".")
		o.logger.Warn("automatic save failed", "session", session, "path", dst, "error", err)
	} else {
		result.Delivered = dst
		o.log.Append("Saved to " + dst + ".")
	}

	o.setState(domain.StateSucceeded)
	o.logger.Info("submission succeeded", "session", session, "filename", filename, "bytes", len(payload))
	return result, nil
}

// fail stops the heartbeat, logs the resolved message and moves the
// submission to its terminal state. The heartbeat must never outlive a
// submission, whichever path ends it.
func (o *Orchestrator) fail(session, message string) error {
	o.log.StopHeartbeat()
	o.log.Append(message)
	o.setState(domain.StateFailed)
	o.logger.Error("submission failed", "session", session, "error", message)
	return errors.New(message)
}

// classifyFailure prefers the server's structured error message; when
// the body is not the expected JSON envelope it falls back to a
// generic message carrying the status code.
func classifyFailure(status int, body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Error) != "" {
		return envelope.Error
	}
	return fmt.Sprintf("generation request failed (status %d)", status)
}

// isTransportError distinguishes failures where no response was
// received at all from everything the application reported itself.
// Context cancellation is the caller's doing, not a connectivity
// problem.
func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var uerr *url.Error
	return errors.As(err, &uerr)
}

func deliver(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
