package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/shelfscan/models"
)

func main() {
	apiURL := os.Getenv("SHELFSCAN_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SHELFSCAN_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SHELFSCAN_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"shelfscan",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	auditURLTool := mcp.NewTool("audit_url",
		mcp.WithDescription("Audit one product page for AI shopping readiness: structured data, identifiers, return/warranty policy, specs and rating. Returns the per-page scores and tiers."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The product page URL to audit"),
		),
		mcp.WithString("category",
			mcp.Description("Optional product category, used by category-level aggregation"),
		),
	)
	s.AddTool(auditURLTool, handleAuditURL(apiURL, apiKey))

	batchAuditTool := mcp.NewTool("batch_audit",
		mcp.WithDescription("Audit many product pages in parallel and return one line of scores per URL."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of product page URLs to audit"),
		),
	)
	s.AddTool(batchAuditTool, handleBatchAudit(apiURL, apiKey))

	aggregateTool := mcp.NewTool("aggregate",
		mcp.WithDescription("Compose retailer-level readiness scores (E, X, A, S and the LAR composite) from every audited page stored for the given domains."),
		mcp.WithArray("domains",
			mcp.Description("Retailer domains to aggregate; all stored domains when omitted"),
		),
		mcp.WithString("mode",
			mcp.Description("Aggregation mode: 'domain' (default), 'category' or 'category_weighted'"),
			mcp.Enum(models.ModeDomain, models.ModeCategory, models.ModeCategoryWeighted),
		),
	)
	s.AddTool(aggregateTool, handleAggregate(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the shelfscan API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, apiURL, apiKey, path string, payload any) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls the batch endpoint until the job leaves "processing" or
// ctx is canceled.
func pollBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, apiURL, apiKey, "/api/v1/batch/"+id, nil)
			if err != nil {
				return nil, err
			}
			var status models.BatchStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != models.BatchProcessing {
				return &status, nil
			}
		}
	}
}

func handleAuditURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		in := models.AuditInput{URL: url, Category: request.GetString("category", "")}

		body, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/audit", in)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp models.AuditResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Record == nil {
			return mcp.NewToolResultError(errorText(resp.Error, "audit failed")), nil
		}
		return mcp.NewToolResultText(formatRecord(resp.Record)), nil
	}
}

func handleBatchAudit(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}
		req := models.BatchRequest{Inputs: make([]models.AuditInput, len(urls))}
		for i, u := range urls {
			req.Inputs[i] = models.AuditInput{URL: u}
		}

		body, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/batch", req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}
		var created models.BatchResponse
		if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		status, err := pollBatch(ctx, client, apiURL, apiKey, created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatBatch(status)), nil
	}
}

func handleAggregate(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := models.AggregateRequest{
			Domains: request.GetStringSlice("domains", nil),
			Mode:    request.GetString("mode", ""),
		}
		body, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/aggregate", req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp struct {
			models.AggregateResponse
			Error *models.ErrorDetail `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(errorText(resp.Error, "aggregate failed")), nil
		}
		return mcp.NewToolResultText(formatAggregates(resp.Mode, resp.Aggregates)), nil
	}
}
