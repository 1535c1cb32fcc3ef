package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

var baseURL = "http://localhost:8080"

const schemaYAML = `purpose: Sales contacts collected from events
enrichment_columns:
  email:
    description: Primary email address, lowercase
    is_entity_identifier: true
    identity_indication: 1.0
  full_name:
    description: Person's full name, first name then last name
    is_entity_identifier: true
    identity_indication: 0.5
  notes:
    description: Free text notes about the contact, accumulated across imports
    is_entity_identifier: false
`

const sourceCSV = `E-Mail,First Name,Last Name,Comment
Jane.Doe@Example.com,Jane,Doe,met at conference
bob@example.com,Bob,Smith,
`

const followUpCSV = `E-Mail,First Name,Last Name,Comment
jane.doe@example.com,Jane,Doe,asked for pricing
`

type ingestResponse struct {
	Report struct {
		Merged   int `json:"merged"`
		Appended int `json:"appended"`
	} `json:"report"`
	Table struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
	} `json:"table"`
}

func main() {
	if v := os.Getenv("BASE_URL"); v != "" {
		baseURL = v
	}
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Health check...")
	resp, err := http.Get(baseURL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		fmt.Printf("FAILED: health check: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	fmt.Println("PASSED: Health check")

	fmt.Println("2. Analyzing source...")
	if _, ok := post("/analyze", map[string]string{"source": sourceCSV}); !ok {
		fmt.Println("FAILED: Analyze")
		os.Exit(1)
	}
	fmt.Println("PASSED: Analyze")

	fmt.Println("3. Ingesting into an empty target...")
	body, ok := post("/ingest", map[string]string{"schema": schemaYAML, "source": sourceCSV})
	if !ok {
		fmt.Println("FAILED: Ingest")
		os.Exit(1)
	}
	var first ingestResponse
	if err := json.Unmarshal(body, &first); err != nil || first.Report.Appended != 2 {
		fmt.Printf("FAILED: expected 2 appended rows, got %+v (%v)\n", first.Report, err)
		os.Exit(1)
	}
	fmt.Println("PASSED: Ingest")

	fmt.Println("4. Ingesting a follow-up against the result...")
	body, ok = post("/ingest", map[string]string{
		"schema": schemaYAML,
		"source": followUpCSV,
		"target": toCSV(first.Table.Columns, first.Table.Rows),
	})
	if !ok {
		fmt.Println("FAILED: Follow-up ingest")
		os.Exit(1)
	}
	var second ingestResponse
	if err := json.Unmarshal(body, &second); err != nil || second.Report.Merged != 1 {
		fmt.Printf("FAILED: expected 1 merged row, got %+v (%v)\n", second.Report, err)
		os.Exit(1)
	}
	fmt.Println("PASSED: Follow-up ingest")
}

func toCSV(columns []string, rows []map[string]string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(columns, ",") + "\n")
	for _, r := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = `"` + strings.ReplaceAll(r[c], `"`, `""`) + `"`
		}
		sb.WriteString(strings.Join(cells, ",") + "\n")
	}
	return sb.String()
}

func post(endpoint string, files map[string]string) ([]byte, bool) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(name, name)
		if err != nil {
			fmt.Printf("Error creating request: %v\n", err)
			return nil, false
		}
		part.Write([]byte(content))
	}
	w.Close()

	req, err := http.NewRequest(http.MethodPost, baseURL+endpoint, &buf)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
