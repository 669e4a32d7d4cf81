// File: internal/browser/content.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// HTML returns the serialized DOM of the current page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ExtractTable reads the index-th <table> on the page as a grid of cell
// texts, one row per table row. Returns nil when no such table exists.
func (s *Session) ExtractTable(ctx context.Context, index int) ([][]string, error) {
	var rows [][]string
	expr := fmt.Sprintf(`(() => {
		const table = document.querySelectorAll('table')[%d];
		if (!table) { return null; }
		return Array.from(table.rows).map(row =>
			Array.from(row.cells).map(cell => (cell.innerText || '').trim()));
	})()`, index)
	if err := s.run(ctx, chromedp.Evaluate(expr, &rows)); err != nil {
		return nil, err
	}
	return rows, nil
}
