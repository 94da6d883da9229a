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
)

// captureRequest mirrors the SiteForge API request model.
type captureRequest struct {
	URL           string `json:"url"`
	IncludeAssets *bool  `json:"include_assets,omitempty"`
	TargetFormat  string `json:"target_format,omitempty"`
	Timeout       int    `json:"timeout,omitempty"`
}

// projectResponse mirrors the SiteForge project record, trimmed to the
// fields the tools surface.
type projectResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	SourceURL     string `json:"source_url"`
	FailureReason string `json:"failure_reason"`
}

// detectResponse mirrors the SiteForge detect-wordpress API response.
type detectResponse struct {
	URL         string   `json:"url"`
	IsWordPress bool     `json:"is_wordpress"`
	Version     string   `json:"version"`
	Theme       string   `json:"theme"`
	Plugins     []string `json:"plugins"`
}

// errorResponse mirrors the SiteForge API error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func main() {
	apiURL := os.Getenv("SITEFORGE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SITEFORGE_API_KEY")

	s := server.NewMCPServer(
		"siteforge",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	captureSiteTool := mcp.NewTool("capture_site",
		mcp.WithDescription("Clone a web page: capture it with a headless browser, download its assets, analyze performance/SEO/security and optionally convert it to a page-builder format. Blocks until the clone job finishes."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to clone"),
		),
		mcp.WithString("target_format",
			mcp.Description("Builder format to convert the captured page into"),
			mcp.Enum("gutenberg", "shortcode", "widgets", "crm", "markdown"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Page load timeout in seconds (default: 30, max: 120)"),
		),
	)
	s.AddTool(captureSiteTool, handleCaptureSite(apiURL, apiKey))

	getProjectTool := mcp.NewTool("get_project",
		mcp.WithDescription("Fetch the full record of a clone project by ID, including status, assets, metrics and converted output."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The project ID returned by capture_site"),
		),
	)
	s.AddTool(getProjectTool, handleGetProject(apiURL, apiKey))

	detectCMSTool := mcp.NewTool("detect_cms",
		mcp.WithDescription("Detect the CMS and technology stack of a website from a single fetch. Reports WordPress version, theme and plugins when found."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the website to inspect"),
		),
	)
	s.AddTool(detectCMSTool, handleDetectCMS(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the SiteForge API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiGet sends a GET request to the SiteForge API and returns the response body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollCompletion polls the project endpoint until the job reaches a
// terminal status or the context is cancelled.
func pollCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, id string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiGet(ctx, client, apiURL, apiKey, "/api/projects/"+id)
			if err != nil {
				return nil, err
			}

			var p projectResponse
			if err := json.Unmarshal(body, &p); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if p.Status == "completed" || p.Status == "failed" {
				return body, nil
			}
		}
	}
}

func handleCaptureSite(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := captureRequest{
			URL:          url,
			TargetFormat: request.GetString("target_format", ""),
			Timeout:      request.GetInt("timeout", 0),
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/capture", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var p projectResponse
		if err := json.Unmarshal(body, &p); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if p.ID == "" {
			var apiErr errorResponse
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
				return mcp.NewToolResultError(fmt.Sprintf("capture failed: %s", apiErr.Message)), nil
			}
			return mcp.NewToolResultError("capture failed"), nil
		}

		final, err := pollCompletion(ctx, client, apiURL, apiKey, p.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(final)), nil
	}
}

func handleGetProject(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		body, err := apiGet(ctx, client, apiURL, apiKey, "/api/projects/"+id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func handleDetectCMS(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/detect-wordpress", map[string]string{"url": url})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var d detectResponse
		if err := json.Unmarshal(body, &d); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if d.URL == "" {
			var apiErr errorResponse
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
				return mcp.NewToolResultError(fmt.Sprintf("detection failed: %s", apiErr.Message)), nil
			}
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
