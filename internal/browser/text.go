// File: internal/browser/text.go
package browser

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// maxAttributeLength caps serialized attribute and text values so one huge
// element cannot flood the model context.
const maxAttributeLength = 2500

// selfContainedTags render without a closing tag. Many of these are not
// interactive but are kept anyway.
var selfContainedTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true,
	"embed": true, "hr": true, "img": true, "input": true,
	"link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

var newlineReplacer = strings.NewReplacer("\r\n", "⏎", "\r", "⏎", "\n", "⏎")

func truncateValue(v string) string {
	runes := []rune(v)
	if len(runes) > maxAttributeLength {
		return string(runes[:maxAttributeLength-1]) + "…"
	}
	return v
}

// ElementAsText renders one element description as a line of pseudo-HTML,
// e.g. `- [3] <a href="/about">About us</a>`.
func ElementAsText(markID int, info map[string]any, logger *zap.Logger) string {
	var tag, text string
	if v, ok := info["tag"].(string); ok {
		tag = strings.ToLower(v)
	}
	if v, ok := info["text"].(string); ok {
		text = v
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		if k == "tag" || k == "text" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := info[k].(type) {
		case nil:
			continue
		case bool:
			// False boolean attributes are dropped entirely.
			if v {
				parts = append(parts, k)
			}
		default:
			parts = append(parts, fmt.Sprintf("%s=%q", k, truncateValue(fmt.Sprintf("%v", v))))
		}
	}
	attributes := strings.Join(parts, " ")
	if attributes != "" {
		attributes = " " + attributes
	}

	attributes = newlineReplacer.Replace(attributes)
	text = newlineReplacer.Replace(truncateValue(text))

	if selfContainedTags[tag] {
		if text != "" {
			logger.Warn("Got self-contained element which contained text",
				zap.String("tag", tag), zap.String("text", text))
		} else {
			return fmt.Sprintf("- [%d] <%s%s/>", markID, tag, attributes)
		}
	}
	return fmt.Sprintf("- [%d] <%s%s>%s</%s>", markID, tag, attributes, text, tag)
}

// POIText renders the current POI snapshot as one line per element, in
// mark-id order.
func (s *Session) POIText() string {
	s.mu.Lock()
	elements := make([]map[string]any, len(s.elements))
	copy(elements, s.elements)
	s.mu.Unlock()

	lines := make([]string, 0, len(elements))
	for i, info := range elements {
		if line := ElementAsText(i, info, s.logger); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
