// Package client talks to the dokflow API on behalf of an editor: it
// uploads pending attachments and submits form payloads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dokflow/api/internal/form"
	"dokflow/api/internal/rowstate"
	"dokflow/api/internal/store"
)

type (
	FileItem = form.FileItem
	FileRef  = form.FileRef
	Blob     = form.Blob
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string         `json:"code"`
	Message string         `json:"error"`
	Details map[string]any `json:"details"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// FormError lists required fields that are still empty; nothing was sent.
type FormError struct {
	Missing map[string]string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("form incomplete: %d missing field(s)", len(e.Missing))
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient gets a two minute
// timeout to leave room for exports.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) ListNDA(ctx context.Context) ([]store.Progress, error) {
	var body struct {
		Items []store.Progress `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/nda", &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

func (c *Client) ListMoms(ctx context.Context, query string) ([]store.Mom, error) {
	var body struct {
		Items []store.Mom `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/mom"+queryString(query), &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

func (c *Client) ListJiks(ctx context.Context, query string) ([]store.Jik, error) {
	var body struct {
		Items []store.Jik `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/jik"+queryString(query), &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

func (c *Client) GetMom(ctx context.Context, id uint) (store.Mom, error) {
	var mom store.Mom
	err := c.getJSON(ctx, "/api/mom/"+strconv.FormatUint(uint64(id), 10), &mom)
	return mom, err
}

func (c *Client) GetJik(ctx context.Context, id uint) (store.Jik, error) {
	var jik store.Jik
	err := c.getJSON(ctx, "/api/jik/"+strconv.FormatUint(uint64(id), 10), &jik)
	return jik, err
}

func (c *Client) DeleteMom(ctx context.Context, id uint) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/mom/"+strconv.FormatUint(uint64(id), 10), nil, nil)
}

// InFlight lists rows of kind with a server-side export or delete running.
func (c *Client) InFlight(ctx context.Context, kind string) ([]rowstate.Entry, error) {
	var body struct {
		Items []rowstate.Entry `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/"+kind+"/actions", &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

// RegisterNDA uploads the NDA file when needed and registers it.
func (c *Client) RegisterNDA(ctx context.Context, f *form.NdaForm) (store.Progress, store.Document, error) {
	if missing := f.Validate(); len(missing) > 0 {
		return store.Progress{}, store.Document{}, &FormError{Missing: missing}
	}
	v := f.Value()
	if v.File.Pending() {
		refs, err := c.Upload(ctx, []Blob{*v.File.Blob})
		if err != nil {
			return store.Progress{}, store.Document{}, err
		}
		v.File = FileItem{Ref: &refs[0]}
		f.Set(v)
	}
	payload, err := f.Payload()
	if err != nil {
		return store.Progress{}, store.Document{}, err
	}

	var body struct {
		Progress store.Progress `json:"progress"`
		Document store.Document `json:"document"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/api/document", payload, &body); err != nil {
		return store.Progress{}, store.Document{}, err
	}
	return body.Progress, body.Document, nil
}

// SubmitMom uploads every section's pending files, then creates or updates
// the MOM with one payload. Sections uploaded before a failure keep their
// stored files in the form so a retry does not upload them again.
func (c *Client) SubmitMom(ctx context.Context, f *form.MomForm) (store.Mom, error) {
	if missing := f.Validate(); len(missing) > 0 {
		return store.Mom{}, &FormError{Missing: missing}
	}
	for i, section := range f.Value().AttachmentSections {
		uploaded, err := c.UploadSection(ctx, section)
		if err != nil {
			return store.Mom{}, fmt.Errorf("attachment section %q: %w", section.SectionName, err)
		}
		if err := f.UpdateAttachmentSection(i, uploaded); err != nil {
			return store.Mom{}, err
		}
	}

	payload, err := f.Payload()
	if err != nil {
		return store.Mom{}, err
	}

	var mom store.Mom
	if id := f.Value().ID; id != 0 {
		err = c.sendJSON(ctx, http.MethodPut, "/api/mom/"+strconv.FormatUint(uint64(id), 10), payload, &mom)
	} else {
		err = c.sendJSON(ctx, http.MethodPost, "/api/mom", payload, &mom)
	}
	if err != nil {
		return store.Mom{}, err
	}
	f.Set(form.MomValueFrom(mom))
	return mom, nil
}

func (c *Client) SubmitJik(ctx context.Context, f *form.JikForm) (store.Jik, error) {
	if missing := f.Validate(); len(missing) > 0 {
		return store.Jik{}, &FormError{Missing: missing}
	}
	payload := f.Payload()

	var jik store.Jik
	var err error
	if id := f.Value().ID; id != 0 {
		err = c.sendJSON(ctx, http.MethodPut, "/api/jik/"+strconv.FormatUint(uint64(id), 10), payload, &jik)
	} else {
		err = c.sendJSON(ctx, http.MethodPost, "/api/jik", payload, &jik)
	}
	if err != nil {
		return store.Jik{}, err
	}
	f.Set(form.JikValueFrom(jik))
	return jik, nil
}

// Download is an exported artifact.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (c *Client) ExportMomPDF(ctx context.Context, id uint) (Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/mom/generate-pdf?id="+strconv.FormatUint(uint64(id), 10), nil)
	if err != nil {
		return Download{}, err
	}
	return c.download(req)
}

func (c *Client) ExportMomDOCX(ctx context.Context, id uint) (Download, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/mom/generate-docx", map[string]uint{"momId": id})
	if err != nil {
		return Download{}, err
	}
	return c.download(req)
}

func (c *Client) ExportJikDOCX(ctx context.Context, id uint) (Download, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/jik/generate-docx", map[string]uint{"jikId": id})
	if err != nil {
		return Download{}, err
	}
	return c.download(req)
}

func (c *Client) download(req *http.Request) (Download, error) {
	req.Header.Del("Accept")
	resp, err := c.http.Do(req)
	if err != nil {
		return Download{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Download{}, decodeAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Download{}, fmt.Errorf("read download: %w", err)
	}
	d := Download{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	return d, nil
}

func queryString(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	return "?" + url.Values{"q": {q}}.Encode()
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
