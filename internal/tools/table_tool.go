// File: internal/tools/table_tool.go
package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/browser"
)

// TableExtractionParams are the arguments of the extract_table function.
type TableExtractionParams struct {
	MarkID int    `json:"mark_id"`
	Format string `json:"format"`
}

// TableExtractionTool converts on-page tables into structured text.
type TableExtractionTool struct {
	session *browser.Session
	logger  *zap.Logger
}

// NewTableExtractionTool wires the table extractor to a session.
func NewTableExtractionTool(session *browser.Session, logger *zap.Logger) *TableExtractionTool {
	return &TableExtractionTool{session: session, logger: logger.Named("TableExtractionTool")}
}

// Schemas implements Tool.
func (t *TableExtractionTool) Schemas() []Schema {
	return []Schema{
		{
			Name:        "extract_table",
			Description: "Extract a table from the webpage and convert it to structured format",
			Parameters: objectSchema(map[string]any{
				"mark_id": integerProperty("The index of the table on the page, counting from 0."),
				"format": map[string]any{
					"type":        "string",
					"enum":        []string{"json", "csv", "markdown"},
					"description": "The output format for the extracted table.",
				},
			}, "mark_id", "format"),
		},
	}
}

// Handlers implements Tool.
func (t *TableExtractionTool) Handlers() map[string]Handler {
	return map[string]Handler{"extract_table": t.extractTable}
}

func (t *TableExtractionTool) extractTable(ctx context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p TableExtractionParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	rows, err := t.session.ExtractTable(ctx, p.MarkID)
	if err != nil {
		return ExecutionResponse{}, err
	}
	if len(rows) == 0 {
		return ExecutionResponse{}, fmt.Errorf("no table found at index %d", p.MarkID)
	}
	out, err := formatTable(rows, p.Format)
	if err != nil {
		return ExecutionResponse{}, err
	}
	return ExecutionResponse{Content: out}, nil
}

func formatTable(rows [][]string, format string) (string, error) {
	switch format {
	case "json":
		return tableToJSON(rows)
	case "csv":
		return tableToCSV(rows)
	case "markdown":
		return tableToMarkdown(rows), nil
	default:
		return "", fmt.Errorf("unknown table format %q", format)
	}
}

// tableToJSON treats the first row as the header and emits one object
// per remaining row. Short rows leave trailing columns empty.
func tableToJSON(rows [][]string) (string, error) {
	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(row) {
				record[key] = row[i]
			} else {
				record[key] = ""
			}
		}
		records = append(records, record)
	}
	out, err := jsoniter.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding table: %w", err)
	}
	return string(out), nil
}

func tableToCSV(rows [][]string) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("encoding table: %w", err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func tableToMarkdown(rows [][]string) string {
	escape := func(cells []string) []string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = strings.ReplaceAll(c, "|", "\\|")
		}
		return out
	}
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(escape(rows[0]), " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(rows[0])) + "\n")
	for _, row := range rows[1:] {
		sb.WriteString("| " + strings.Join(escape(row), " | ") + " |\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

var _ Tool = (*TableExtractionTool)(nil)
