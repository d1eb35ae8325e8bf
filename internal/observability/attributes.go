// Package observability provides the service's metrics surface.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /api/jobs/abc123 -> /api/jobs/{id}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	for _, prefix := range []string{"/api/jobs/", "/api/documents/"} {
		if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
			continue
		}
		rest := path[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return prefix + "{id}" + rest[idx:]
		}
		return prefix + "{id}"
	}
	return path
}
