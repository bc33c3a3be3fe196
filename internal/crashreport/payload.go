package crashreport

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/crashcollector/collector/internal/telemetry"
)

// MaxDumpNameLen bounds a sanitized dump name at 100 bytes.
const MaxDumpNameLen = 100

// MaxBodyBytes bounds how many bytes the parser reads into memory from a
// decompressed body, and separately from each multipart part; input past
// the bound is cut off, not rejected.
const MaxBodyBytes = 100 * 1024 * 1024 // 100 MiB

// Parser decodes one HTTP request into (Annotations, Dumps), or reports it
// as malformed. It never returns an error to its caller: malformed reasons
// are observable only as metrics.
type Parser struct {
	Metrics telemetry.Metrics
	Logger  *telemetry.Logger
}

func NewParser(m telemetry.Metrics, l *telemetry.Logger) *Parser {
	return &Parser{Metrics: m, Logger: l}
}

func (p *Parser) malformed(reason string) (Annotations, Dumps, bool) {
	p.Metrics.Incr("malformed", telemetry.Labels{"reason": reason})
	return nil, nil, false
}

// Parse decodes one HTTP request into annotations and dumps, or reports
// it as malformed.
func (p *Parser) Parse(r *http.Request) (Annotations, Dumps, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return p.malformed("no_content_type")
	}

	parts := strings.SplitN(ct, ";", 2)
	mediaType := strings.TrimSpace(parts[0])
	if mediaType != "multipart/form-data" {
		return p.malformed("wrong_content_type")
	}
	if len(parts) != 2 || !strings.HasPrefix(strings.TrimSpace(parts[1]), "boundary=") {
		return p.malformed("no_boundary")
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil || params["boundary"] == "" {
		return p.malformed("no_boundary")
	}
	boundary := params["boundary"]

	contentLength, _ := strconv.ParseInt(r.Header.Get("Content-Length"), 10, 64)
	if contentLength <= 0 {
		return p.malformed("no_content_length")
	}

	var body io.Reader = io.LimitReader(r.Body, contentLength)
	uncompressed := true

	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		uncompressed = false
		gz, err := gzip.NewReader(body)
		if err != nil {
			return p.malformed("bad_gzip")
		}
		defer gz.Close()
		data, err := io.ReadAll(io.LimitReader(gz, MaxBodyBytes))
		if err != nil {
			return p.malformed("bad_gzip")
		}
		body = strings.NewReader(string(data))
		p.Metrics.Incr("gzipped_crash", nil)
		p.Metrics.Histogram("crash_size", float64(contentLength), telemetry.Labels{"payload": "compressed"})
	}

	annotations := Annotations{}
	dumps := Dumps{}
	hasJSON := false
	hasKV := false

	mr := multipart.NewReader(body, boundary)
	totalBytes := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.malformed("bad_multipart")
		}

		name := part.FormName()
		if name == "dump_checksums" {
			_, _ = io.Copy(io.Discard, part)
			continue
		}

		mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))

		data, err := io.ReadAll(io.LimitReader(part, MaxBodyBytes))
		if err != nil {
			return p.malformed("bad_multipart")
		}
		totalBytes += len(data)

		switch {
		case strings.HasPrefix(mediaType, "application/json"):
			var replacement map[string]string
			if err := json.Unmarshal(data, &replacement); err != nil {
				if p.Logger != nil {
					p.Logger.Warn("crash_json_part_invalid", map[string]any{"error": err.Error()})
				}
				continue
			}
			annotations = Annotations{}
			for k, v := range replacement {
				annotations[k] = v
			}
			hasJSON = true
		case strings.HasPrefix(mediaType, "application/octet-stream") || part.FileName() != "":
			dumps[sanitizeDumpName(name)] = data
		default:
			annotations[name] = string(data)
			hasKV = true
		}
	}

	if hasJSON && hasKV {
		return p.malformed("has_json_and_kv")
	}

	if uncompressed {
		p.Metrics.Histogram("crash_size", float64(totalBytes), telemetry.Labels{"payload": "uncompressed"})
	}

	return annotations, dumps, true
}

// sanitizeDumpName allows only [A-Za-z0-9_-], replacing anything else with
// '_', and caps the result at MaxDumpNameLen bytes.
func sanitizeDumpName(name string) string {
	b := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
			b = append(b, c)
		default:
			b = append(b, '_')
		}
	}
	if len(b) > MaxDumpNameLen {
		b = b[:MaxDumpNameLen]
	}
	if len(b) == 0 {
		return "_"
	}
	return string(b)
}
