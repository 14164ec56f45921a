package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// ParseSSEData parses a Server-Sent Events stream into its data payloads,
// one string per event. The chat stream uses data-only events, so event
// type lines are not expected.
//
// Handles the W3C SSE spec rules that matter here:
//   - Multiple "data:" lines of one event are joined with newline
//   - An empty line terminates an event
//   - Comment lines starting with ":" are ignored
//
// Example:
//
//	payloads := testutil.ParseSSEData(t, recorder.Body.String())
//	require.Equal(t, "[DONE]", payloads[len(payloads)-1])
func ParseSSEData(t *testing.T, body string) []string {
	t.Helper()

	var (
		payloads  []string
		dataLines []string
	)

	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if len(dataLines) > 0 {
				payloads = append(payloads, strings.Join(dataLines, "\n"))
				dataLines = nil
			}

		case strings.HasPrefix(line, ":"):
			// comment, ignored

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}
	if len(dataLines) > 0 {
		t.Fatalf("SSE stream ended without terminating event (missing empty line after %q)", dataLines[0])
	}

	return payloads
}
