package controllers

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ebookforge/ebookctl/pkg/config"
	"github.com/ebookforge/ebookctl/pkg/domain"
)

// stubPDF is a minimal single-page document; ebookd returns it in place
// of a generated manuscript.
const stubPDF = "%PDF-1.4\n" +
	"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 595 842]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n" +
	"%%EOF\n"

type generateEbookController struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewGenerateEbookController(cfg *config.Config, logger *slog.Logger) *generateEbookController {
	return &generateEbookController{cfg: cfg, logger: logger}
}

// Handle reproduces the generation service's request contract: same
// fields, same validation order, same JSON error envelope and the same
// Content-Disposition on success. Only the generation itself is
// replaced by a canned document.
func (h *generateEbookController) Handle(c *gin.Context) {
	text := strings.TrimSpace(c.PostForm(domain.FieldTextContent))
	personality := strings.TrimSpace(c.PostForm(domain.FieldPersonality))
	if personality == "" {
		personality = "neutra"
	}
	googleKey := strings.TrimSpace(c.PostForm(domain.FieldGoogleAPIKey))
	openaiKey := strings.TrimSpace(c.PostForm(domain.FieldOpenAIAPIKey))
	outputPath := strings.TrimSpace(c.PostForm(domain.FieldOutputPath))

	fileCount := 0
	if form, err := c.MultipartForm(); err == nil && form != nil {
		fileCount = len(form.File[domain.FieldFiles])
	}
	h.logger.Info("generation request received",
		"textChars", len(text), "files", fileCount, "personality", personality)

	if text == "" {
		h.logger.Info("request rejected: empty text content")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Conteudo de texto e obrigatorio."})
		return
	}
	if googleKey == "" && openaiKey == "" {
		h.logger.Info("request rejected: no API key supplied")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Pelo menos uma chave de API (Google Gemini ou OpenAI) e obrigatoria.",
		})
		return
	}

	if h.cfg.DelaySeconds > 0 {
		select {
		case <-time.After(time.Duration(h.cfg.DelaySeconds) * time.Second):
		case <-c.Request.Context().Done():
			return
		}
	}

	name := h.cfg.ArtifactName
	if outputPath != "" {
		name = filepath.Base(outputPath)
	}

	h.logger.Info("returning stub artifact", "filename", name, "bytes", len(stubPDF))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", []byte(stubPDF))
}
