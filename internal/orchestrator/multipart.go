package orchestrator

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"sort"

	"github.com/ebookforge/ebookctl/pkg/domain"
)

// encodeMultipart renders a SubmissionRequest as a multipart/form-data
// body: one part per scalar field (sorted by name for a stable
// encoding) and one part per attachment under the shared "files" name.
func encodeMultipart(req domain.SubmissionRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	names := req.FieldNames()
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, req.Field(name)); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", name, err)
		}
	}

	for _, f := range req.Files() {
		part, err := w.CreateFormFile(domain.FieldFiles, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file part %q: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
