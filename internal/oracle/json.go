package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/hotelrag/internal/errors"
)

// AskJSON asks o for a JSON object and decodes it into v.
//
// Recovery order: decode the raw text, then the outermost brace-delimited
// substring, then one retry with retryMaxTokens, decoded the same way. If all
// fail the error has code ERR_602_ORACLE_MALFORMED and v is left untouched.
// Transport failures return the oracle's own error.
func AskJSON(ctx context.Context, o Oracle, req Request, retryMaxTokens int, v any, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	req.JSON = true

	text, err := o.Ask(ctx, req)
	if err != nil {
		return err
	}
	if decodeLenient(text, v) {
		return nil
	}
	logger.Debug("oracle_json_malformed", slog.Int("chars", len(text)), slog.Bool("retry", true))

	if retryMaxTokens > req.MaxTokens {
		req.MaxTokens = retryMaxTokens
	}
	text, err = o.Ask(ctx, req)
	if err != nil {
		return err
	}
	if decodeLenient(text, v) {
		return nil
	}
	logger.Debug("oracle_json_malformed", slog.Int("chars", len(text)), slog.Bool("retry", false))
	return errors.OracleMalformed("could not decode oracle output as JSON", nil).
		WithDetail("sample", truncate(text, 80))
}

// decodeLenient tries the whole text, then its brace-delimited core.
func decodeLenient(text string, v any) bool {
	text = stripFences(text)
	if strictDecode(text, v) {
		return true
	}
	if core, ok := ExtractObject(text); ok {
		return strictDecode(core, v)
	}
	return false
}

// strictDecode decodes into a scratch value first so v is only written on success.
func strictDecode(text string, v any) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return false
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return false
	}
	return json.Unmarshal([]byte(text), v) == nil
}

// ExtractObject returns the substring from the first '{' to the last '}'.
func ExtractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
