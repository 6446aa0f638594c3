package observability

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidynest/api/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

// TraceMiddleware extracts Cloud Trace headers and stores trace metadata on the request context.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			info.ProjectID = projectID

			ctx := requestctx.WithTrace(r.Context(), info)
			r = r.WithContext(ctx)

			if formatted := formatCloudTraceHeader(info); formatted != "" {
				w.Header().Set(cloudTraceHeader, formatted)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseCloudTraceContext(header string) (requestctx.TraceInfo, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return requestctx.TraceInfo{}, false
	}

	parts := strings.SplitN(header, "/", 2)
	if len(parts) != 2 {
		return requestctx.TraceInfo{}, false
	}

	traceID := strings.TrimSpace(parts[0])
	if len(traceID) != 32 {
		return requestctx.TraceInfo{}, false
	}

	spanPart := parts[1]
	optionPart := ""
	if idx := strings.Index(spanPart, ";"); idx >= 0 {
		optionPart = spanPart[idx+1:]
		spanPart = spanPart[:idx]
	}

	spanID := strings.TrimSpace(spanPart)
	if spanID == "" {
		return requestctx.TraceInfo{}, false
	}

	return requestctx.TraceInfo{
		TraceID: traceID,
		SpanID:  spanID,
		Sampled: parseTraceOptions(optionPart),
	}, true
}

func parseTraceOptions(optionPart string) bool {
	optionPart = strings.TrimSpace(optionPart)
	if optionPart == "" {
		return false
	}
	for _, segment := range strings.Split(optionPart, ";") {
		segment = strings.TrimSpace(segment)
		if strings.HasPrefix(segment, "o=") {
			return segment == "o=1"
		}
	}
	return false
}

func formatCloudTraceHeader(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	option := "0"
	if info.Sampled {
		option = "1"
	}
	return fmt.Sprintf("%s/%s;o=%s", info.TraceID, info.SpanID, option)
}
