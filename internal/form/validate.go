package form

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

// Validation messages.
const (
	MsgRequired        = "This field is required"
	MsgInvalidDatetime = "Invalid date/time"
	MsgInvalidFileType = "Invalid file type"
)

// Errors maps field names to their validation message.
type Errors map[string]string

// Validate runs the submit-time rule set over values. Required fields with
// an empty value fail first; otherwise the format checks of the kind apply to
// any non-empty value.
func Validate(fields []schema.Field, values map[string]any) Errors {
	errs := Errors{}
	for _, f := range fields {
		t := schema.CanonicalType(f)
		if schema.MustKind(t).Presentational {
			continue
		}
		v := values[f.Name]
		if schema.IsEmpty(t, v) {
			if f.Required {
				errs[f.Name] = MsgRequired
			}
			continue
		}
		if msg := checkValue(f, t, v); msg != "" {
			errs[f.Name] = msg
		}
	}
	return errs
}

func checkValue(f schema.Field, t schema.Type, v any) string {
	switch t {
	case schema.SmartDatetime:
		if s, ok := v.(string); ok && !ParseDatetime(s) {
			return MsgInvalidDatetime
		}
	case schema.File:
		if files, ok := v.([]types.FileHandle); ok {
			return checkFiles(f, files)
		}
	}
	return ""
}

// checkFiles applies count, size and type limits in that order. When several
// fail, the last failing check's message is reported.
func checkFiles(f schema.Field, files []types.FileHandle) string {
	msg := ""
	if f.MaxFiles > 0 && len(files) > f.MaxFiles {
		msg = fmt.Sprintf("Max %d files", f.MaxFiles)
	}
	if f.MaxSizeMB > 0 {
		limit := int64(f.MaxSizeMB * 1024 * 1024)
		for _, fh := range files {
			if fh.Size > limit {
				msg = fmt.Sprintf("Each file must be <= %sMB", strconv.FormatFloat(f.MaxSizeMB, 'f', -1, 64))
				break
			}
		}
	}
	if patterns := acceptPatterns(f.Accept); len(patterns) > 0 {
		for _, fh := range files {
			if !accepted(fh, patterns) {
				msg = MsgInvalidFileType
				break
			}
		}
	}
	return msg
}

func acceptPatterns(accept schema.AcceptList) []string {
	var out []string
	for _, p := range accept {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// accepted matches a file against accept patterns: ".ext" compares the
// filename extension, "type/*" a MIME prefix and anything else the full MIME
// type or a filename suffix.
func accepted(fh types.FileHandle, patterns []string) bool {
	mime := strings.ToLower(fh.Type)
	name := strings.ToLower(fh.Name)
	for _, p := range patterns {
		switch {
		case strings.HasPrefix(p, "."):
			if path.Ext(name) == p || strings.HasSuffix(name, p) {
				return true
			}
		case strings.HasSuffix(p, "/*"):
			if strings.HasPrefix(mime, strings.TrimSuffix(p, "*")) {
				return true
			}
		default:
			if mime == p || strings.HasPrefix(mime, p) || strings.HasSuffix(name, p) {
				return true
			}
		}
	}
	return false
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDatetime reports whether s is a recognizable date or date-time.
func ParseDatetime(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
