// Package crm mirrors captured leads into Airtable. The sync is strictly
// fire-and-forget: the funnel's source of truth is Postgres, and a CRM
// outage must never surface to the person submitting the form.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultTableName = "Quiz Narcisista"

// Lead is one captured contact with its quiz outcome.
type Lead struct {
	Name       string
	Email      string
	CapturedAt time.Time
	Score      int
	LevelLabel string
	Paid       bool
}

// Recorder is the narrow interface the api package depends on. The concrete
// implementations are the Airtable client and Noop.
type Recorder interface {
	RecordLead(ctx context.Context, lead Lead) error
}

// Noop discards leads. Used when Airtable credentials are not configured.
type Noop struct{}

func (Noop) RecordLead(context.Context, Lead) error { return nil }

// airtableClient posts one record per lead to the Airtable REST API.
type airtableClient struct {
	apiKey     string
	baseID     string
	tableName  string
	apiBase    string
	httpClient *http.Client
}

// NewAirtable returns the Airtable-backed Recorder. tableName and apiBase
// fall back to the production defaults when empty.
func NewAirtable(apiKey, baseID, tableName, apiBase string) Recorder {
	if tableName == "" {
		tableName = defaultTableName
	}
	if apiBase == "" {
		apiBase = "https://api.airtable.com"
	}
	return &airtableClient{
		apiKey:    apiKey,
		baseID:    baseID,
		tableName: tableName,
		apiBase:   apiBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RecordLead creates one row. Column names match the existing Airtable base,
// which predates this service.
func (c *airtableClient) RecordLead(ctx context.Context, lead Lead) error {
	pagado := "No"
	if lead.Paid {
		pagado = "Si"
	}
	body := map[string]any{
		"fields": map[string]any{
			"Nombre": lead.Name,
			"Email":  lead.Email,
			"Fecha":  lead.CapturedAt.UTC().Format(time.RFC3339),
			"Score":  lead.Score,
			"Nivel":  lead.LevelLabel,
			"Pagado": pagado,
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("crm: marshal lead: %w", err)
	}

	endpoint := c.apiBase + "/v0/" + c.baseID + "/" + url.PathEscape(c.tableName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crm: create record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("crm: airtable rejected record (status %d): %s", resp.StatusCode, detail)
	}
	return nil
}
