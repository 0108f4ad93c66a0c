package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/entity"
	"github.com/joseph-ayodele/invoice-ledger/internal/extract"
)

// Extract sends images inline as data URLs; other formats only get a filename
// prompt, so their result quality depends on the model.
func (c *Client) Extract(ctx context.Context, doc entity.Document) (entity.StructuredInvoice, error) {
	rid := uuid.New().String()
	start := time.Now()

	attach := constants.IsImageExt(filepath.Ext(doc.Filename))
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"document_id", doc.ID,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"image_attached", attach,
		"mime", doc.MimeHint,
	)

	var userContent any = buildTextPrompt(doc)
	if attach {
		dataURL, err := c.readAsDataURL(doc)
		if err != nil {
			c.logger.Error("llm.extract.read_error", "req_id", rid, "error", err)
			return entity.StructuredInvoice{}, extract.NewExtractionError(doc.ID, extract.ReasonUpstream, err)
		}
		userContent = []map[string]any{
			{"type": "text", "text": "Extract the data of this invoice. Leave unclear fields out."},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}
	}

	schema := extract.BuildInvoiceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(c.cfg.DefaultCurrency)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
			{"role": "user", "content": userContent},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.StructuredInvoice{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.StructuredInvoice{}, malformed(doc, fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.StructuredInvoice{}, malformed(doc, fmt.Errorf("no choices in openai response"))
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := extract.ValidateJSONAgainstSchema(schema, content); err != nil {
		if c.cfg.StrictSchema {
			c.logger.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return entity.StructuredInvoice{}, malformed(doc, fmt.Errorf("schema validation failed: %w", err))
		}
		cleaned, dropped, sErr := extract.SanitizeInvoiceJSON(content, c.logger)
		if sErr != nil {
			c.logger.Error("llm.extract.sanitize_failed", "req_id", rid, "error", sErr)
			return entity.StructuredInvoice{}, malformed(doc, fmt.Errorf("sanitize failed: %w", sErr))
		}
		if vErr := extract.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.logger.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return entity.StructuredInvoice{}, malformed(doc, fmt.Errorf("schema validation failed: %w", vErr))
		}
		c.logger.Warn("llm.extract.lenient_sanitize_applied", "req_id", rid, "dropped", dropped)
		content = cleaned
	}

	var fields extract.InvoiceFields
	if err := json.Unmarshal(content, &fields); err != nil {
		return entity.StructuredInvoice{}, malformed(doc, fmt.Errorf("unmarshal fields: %w", err))
	}
	inv, err := fields.ToInvoice()
	if err != nil {
		return entity.StructuredInvoice{}, malformed(doc, err)
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"document_id", doc.ID,
		"supplier", inv.SupplierName,
		"number", inv.Number(),
		"grand_total", inv.GrandTotal.StringFixed(2),
		"currency", inv.Currency,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func (c *Client) readAsDataURL(doc entity.Document) (string, error) {
	st, err := os.Stat(doc.Locator)
	if err != nil {
		return "", err
	}
	if st.Size() > int64(c.cfg.MaxImageMB)*1024*1024 {
		return "", fmt.Errorf("image too large: %d bytes", st.Size())
	}
	b, err := os.ReadFile(doc.Locator)
	if err != nil {
		return "", err
	}
	mt := doc.MimeHint
	if !strings.HasPrefix(mt, "image/") {
		mt = "image/jpeg"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

func malformed(doc entity.Document, err error) error {
	return extract.NewExtractionError(doc.ID, extract.ReasonMalformed, err)
}

func buildSystemPrompt(defaultCurrency string) string {
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the JSON Schema provided.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Money fields are strings with at most two decimals, no currency symbols or thousands separators.",
		"'tax_base' is the sum before taxes, 'tax_total' all taxes together, 'grand_total' the amount to pay.",
		"Currency must be a 3-letter ISO 4217 code; default to " + defaultCurrency + " if uncertain.",
		"List every detail line under 'items' in document order; if quantity is not shown use \"1\".",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

func buildTextPrompt(doc entity.Document) string {
	return "Extract the data of this invoice (filename: " + doc.Filename + ")."
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
