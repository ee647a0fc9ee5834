package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ebookforge/ebookctl/pkg/config"
	"github.com/ebookforge/ebookctl/pkg/domain"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := gin.New()
	engine.POST("/generate_ebook", NewGenerateEbookController(cfg, logger).Handle)
	return engine
}

func multipartBody(t *testing.T, fields map[string]string, files ...string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, name := range files {
		part, err := w.CreateFormFile(domain.FieldFiles, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("content")); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf, w.FormDataContentType()
}

func TestGenerateEbookSuccess(t *testing.T) {
	engine := newTestEngine(t)
	body, contentType := multipartBody(t, map[string]string{
		domain.FieldTextContent:  "chapter one",
		domain.FieldGoogleAPIKey: "key",
	}, "ref.pdf")

	req := httptest.NewRequest(http.MethodPost, "/generate_ebook", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="ebook_gerado.pdf"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Errorf("body does not look like a PDF: %q", rec.Body.String()[:16])
	}
}

func TestGenerateEbookFilenameFromOutputPath(t *testing.T) {
	engine := newTestEngine(t)
	body, contentType := multipartBody(t, map[string]string{
		domain.FieldTextContent:  "chapter one",
		domain.FieldOpenAIAPIKey: "key",
		domain.FieldOutputPath:   "/home/user/books/meu_livro.pdf",
	})

	req := httptest.NewRequest(http.MethodPost, "/generate_ebook", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="meu_livro.pdf"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestGenerateEbookValidation(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		wantError string
	}{
		{
			"empty text",
			map[string]string{domain.FieldGoogleAPIKey: "key"},
			"Conteudo de texto e obrigatorio.",
		},
		{
			"no api key",
			map[string]string{domain.FieldTextContent: "something"},
			"Pelo menos uma chave de API (Google Gemini ou OpenAI) e obrigatoria.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t)
			body, contentType := multipartBody(t, tt.fields)

			req := httptest.NewRequest(http.MethodPost, "/generate_ebook", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var envelope struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("unmarshal error body: %v", err)
			}
			if envelope.Error != tt.wantError {
				t.Errorf("error = %q, want %q", envelope.Error, tt.wantError)
			}
		})
	}
}
