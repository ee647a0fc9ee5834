package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ebookforge/ebookctl/internal/artifacts"
	"github.com/ebookforge/ebookctl/internal/endpoint"
	"github.com/ebookforge/ebookctl/internal/progresslog"
	"github.com/ebookforge/ebookctl/pkg/domain"
)

func newTestOrchestrator(t *testing.T, baseURL string) (*Orchestrator, *progresslog.Log) {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	log := progresslog.New(nil)
	env := endpoint.Static{OverrideURL: baseURL}
	return New(env, log, store, nil), log
}

func simpleRequest(t *testing.T, files ...domain.Attachment) domain.SubmissionRequest {
	t.Helper()
	return domain.NewSubmissionRequest(map[string]string{
		domain.FieldTextContent:  "some text",
		domain.FieldPersonality:  "neutra",
		domain.FieldGoogleAPIKey: "key",
		domain.FieldOutputPath:   filepath.Join(t.TempDir(), "out.pdf"),
	}, files)
}

func TestSubmitSuccess(t *testing.T) {
	var gotContentType string
	var gotFields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		w.Header().Set("Content-Disposition", `attachment; filename="ebook.pdf"`)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "%PDF-1.4 payload")
	}))
	defer srv.Close()

	o, log := newTestOrchestrator(t, srv.URL)
	req := simpleRequest(t)

	result, err := o.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if log.HeartbeatRunning() {
		t.Error("heartbeat still running after a successful submission")
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Errorf("Content-Type = %q, want multipart/form-data", gotContentType)
	}
	if gotFields[domain.FieldTextContent] != "some text" {
		t.Errorf("text_content field = %q", gotFields[domain.FieldTextContent])
	}
	if result.Filename != "ebook.pdf" {
		t.Errorf("Filename = %q, want ebook.pdf", result.Filename)
	}
	if o.State() != domain.StateSucceeded {
		t.Errorf("State() = %v, want %v", o.State(), domain.StateSucceeded)
	}
	if result.Delivered == "" {
		t.Fatal("result not auto-delivered")
	}
	data, err := os.ReadFile(result.Delivered)
	if err != nil {
		t.Fatalf("read delivered artifact: %v", err)
	}
	if string(data) != "%PDF-1.4 payload" {
		t.Errorf("delivered content = %q", string(data))
	}
}

func TestSubmitSendsAttachments(t *testing.T) {
	var gotFiles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		for _, fh := range r.MultipartForm.File[domain.FieldFiles] {
			gotFiles = append(gotFiles, fh.Filename)
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "pdf")
	}))
	defer srv.Close()

	o, log := newTestOrchestrator(t, srv.URL)
	req := simpleRequest(t,
		domain.Attachment{Name: "ref1.pdf", Data: []byte("a")},
		domain.Attachment{Name: "ref2.txt", Data: []byte("b")},
		domain.Attachment{Name: "ref3.txt", Data: []byte("c")},
	)

	if _, err := o.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(gotFiles) != 3 || gotFiles[0] != "ref1.pdf" || gotFiles[1] != "ref2.txt" || gotFiles[2] != "ref3.txt" {
		t.Errorf("received files = %v", gotFiles)
	}

	// Exactly one attachment-count event naming the count.
	count := 0
	for _, ev := range log.Entries() {
		if strings.Contains(ev.Message, "3 reference file(s)") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("attachment-count events = %d, want 1", count)
	}
}

func TestSubmitServerReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"quota exceeded"}`)
	}))
	defer srv.Close()

	o, log := newTestOrchestrator(t, srv.URL)
	_, err := o.Submit(context.Background(), simpleRequest(t))
	if err == nil {
		t.Fatal("Submit succeeded, want error")
	}
	if err.Error() != "quota exceeded" {
		t.Errorf("error = %q, want %q", err.Error(), "quota exceeded")
	}
	if strings.Contains(err.Error(), "reachable") {
		t.Error("server-reported error must not carry the connectivity hint")
	}
	if o.State() != domain.StateFailed {
		t.Errorf("State() = %v, want %v", o.State(), domain.StateFailed)
	}
	if log.HeartbeatRunning() {
		t.Error("heartbeat still running after a failed submission")
	}

	// Log and returned error must carry the same resolved message.
	entries := log.Entries()
	if len(entries) == 0 || entries[len(entries)-1].Message != "quota exceeded" {
		t.Errorf("last log entry = %v, want %q", entries, "quota exceeded")
	}
}

func TestSubmitUnparseableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "<html>boom</html>")
	}))
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv.URL)
	_, err := o.Submit(context.Background(), simpleRequest(t))
	if err == nil {
		t.Fatal("Submit succeeded, want error")
	}
	if !strings.Contains(err.Error(), "generation request failed") {
		t.Errorf("error = %q, want generic prefix", err.Error())
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want status code 500", err.Error())
	}
}

func TestSubmitTransportErrorHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	o, log := newTestOrchestrator(t, srv.URL)
	_, err := o.Submit(context.Background(), simpleRequest(t))
	if err == nil {
		t.Fatal("Submit succeeded, want transport error")
	}
	if got := strings.Count(err.Error(), connectivityHint); got != 1 {
		t.Errorf("connectivity hint appears %d times, want exactly 1: %q", got, err.Error())
	}
	if o.State() != domain.StateFailed {
		t.Errorf("State() = %v, want %v", o.State(), domain.StateFailed)
	}
	if log.HeartbeatRunning() {
		t.Error("heartbeat still running after a transport failure")
	}
}

func TestSubmitMissingDispositionUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "pdf")
	}))
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv.URL)
	result, err := o.Submit(context.Background(), simpleRequest(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Filename != DefaultFilename {
		t.Errorf("Filename = %q, want %q", result.Filename, DefaultFilename)
	}
}

type countingTransport struct {
	calls int
}

func (ct *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ct.calls++
	return http.DefaultTransport.RoundTrip(r)
}

func TestWithHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "pdf")
	}))
	defer srv.Close()

	store, err := artifacts.NewStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	transport := &countingTransport{}
	o := New(endpoint.Static{OverrideURL: srv.URL}, progresslog.New(nil), store, nil,
		WithHTTPClient(&http.Client{Transport: transport}))

	if _, err := o.Submit(context.Background(), simpleRequest(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("injected client saw %d requests, want 1", transport.calls)
	}
}

func TestSubmitRejectsOverlapping(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "pdf")
	}))
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv.URL)
	first := simpleRequest(t)
	second := simpleRequest(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = o.Submit(context.Background(), first)
	}()

	// Wait for the first submission to be in flight.
	deadline := time.After(2 * time.Second)
	for o.State() != domain.StateAwaiting {
		select {
		case <-deadline:
			t.Fatal("first submission never reached Awaiting")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := o.Submit(context.Background(), second); err != ErrInFlight {
		t.Errorf("second Submit error = %v, want ErrInFlight", err)
	}
	close(release)
	wg.Wait()
}

func TestSubmitClearsLogOnStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "pdf")
	}))
	defer srv.Close()

	o, log := newTestOrchestrator(t, srv.URL)
	log.Append("stale entry from a previous submission")

	if _, err := o.Submit(context.Background(), simpleRequest(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, ev := range log.Entries() {
		if strings.Contains(ev.Message, "stale entry") {
			t.Error("log was not cleared at the start of the submission")
		}
	}
}
