package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"dokflow/api/internal/form"
)

// Partition splits items into stored references, kept as they are, and
// blobs that still need uploading. Order within each group is preserved.
func Partition(items []FileItem) (persisted []FileRef, pending []Blob) {
	for _, item := range items {
		switch {
		case item.Ref != nil:
			persisted = append(persisted, *item.Ref)
		case item.Blob != nil:
			pending = append(pending, *item.Blob)
		}
	}
	return persisted, pending
}

// UploadSection uploads the section's pending files. The result lists the
// persisted files followed by the newly uploaded ones. With nothing
// pending the section is returned unchanged and no request is made. Any
// failure fails the whole section.
func (c *Client) UploadSection(ctx context.Context, section form.AttachmentSection) (form.AttachmentSection, error) {
	persisted, pending := Partition(section.Files)
	if len(pending) == 0 {
		return section, nil
	}

	uploaded, err := c.Upload(ctx, pending)
	if err != nil {
		return section, err
	}

	files := make([]FileItem, 0, len(persisted)+len(uploaded))
	for i := range persisted {
		files = append(files, FileItem{Ref: &persisted[i]})
	}
	for i := range uploaded {
		files = append(files, FileItem{Ref: &uploaded[i]})
	}
	return form.AttachmentSection{SectionName: section.SectionName, Files: files}, nil
}

// Upload posts blobs as one multipart request under the "files" field.
func (c *Client) Upload(ctx context.Context, blobs []Blob) ([]FileRef, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, blob := range blobs {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, blob.Name))
		contentType := blob.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(blob.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", blob.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out struct {
		Files []FileRef `json:"files"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if len(out.Files) != len(blobs) {
		return nil, fmt.Errorf("upload: sent %d files, stored %d", len(blobs), len(out.Files))
	}
	return out.Files, nil
}
