package crashreport

import (
	"bytes"
	"compress/gzip"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/crashcollector/collector/internal/telemetry"
)

func newTestParser() *Parser {
	return NewParser(telemetry.NewMemoryMetrics(), telemetry.Nop)
}

func buildMultipart(t *testing.T, fields map[string]string, dumps map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for name, data := range dumps {
		fw, err := w.CreateFormFile(name, name+".dmp")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write dump: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.Boundary()
}

func newMultipartRequest(t *testing.T, fields map[string]string, dumps map[string][]byte, gzipBody bool) *http.Request {
	t.Helper()
	body, boundary := buildMultipart(t, fields, dumps)
	raw := body.Bytes()

	var finalBody []byte
	encoding := ""
	if gzipBody {
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		if _, err := gw.Write(raw); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
		if err := gw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
		finalBody = gzBuf.Bytes()
		encoding = "gzip"
	} else {
		finalBody = raw
	}

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(finalBody))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Content-Length", strconv.Itoa(len(finalBody)))
	req.ContentLength = int64(len(finalBody))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	return req
}

func TestParse_AcceptsPlainMultipart(t *testing.T) {
	p := newTestParser()
	req := newMultipartRequest(t, map[string]string{"ProductName": "Widget"}, map[string][]byte{"upload_file_minidump": []byte("dump-bytes")}, false)

	annotations, dumps, ok := p.Parse(req)
	if !ok {
		t.Fatal("expected Parse to succeed")
	}
	if annotations["ProductName"] != "Widget" {
		t.Fatalf("unexpected annotations: %+v", annotations)
	}
	if string(dumps["upload_file_minidump"]) != "dump-bytes" {
		t.Fatalf("unexpected dumps: %+v", dumps)
	}
}

func TestParse_AcceptsGzippedMultipart(t *testing.T) {
	p := newTestParser()
	req := newMultipartRequest(t, map[string]string{"ProductName": "Widget"}, nil, true)

	_, _, ok := p.Parse(req)
	if !ok {
		t.Fatal("expected Parse to succeed for gzipped body")
	}
}

func TestParse_NoContentType(t *testing.T) {
	p := newTestParser()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(nil))
	_, _, ok := p.Parse(req)
	if ok {
		t.Fatal("expected malformed no_content_type")
	}
}

func TestParse_WrongContentType(t *testing.T) {
	p := newTestParser()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", "2")
	_, _, ok := p.Parse(req)
	if ok {
		t.Fatal("expected malformed wrong_content_type")
	}
}

func TestParse_NoBoundary(t *testing.T) {
	p := newTestParser()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "multipart/form-data")
	req.Header.Set("Content-Length", "1")
	_, _, ok := p.Parse(req)
	if ok {
		t.Fatal("expected malformed no_boundary")
	}
}

func TestParse_NoContentLength(t *testing.T) {
	p := newTestParser()
	_, boundary := buildMultipart(t, map[string]string{"a": "b"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	_, _, ok := p.Parse(req)
	if ok {
		t.Fatal("expected malformed no_content_length")
	}
}

func TestParse_BadGzip(t *testing.T) {
	p := newTestParser()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader([]byte("not-gzip-data")))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	req.Header.Set("Content-Length", "13")
	req.Header.Set("Content-Encoding", "gzip")
	_, _, ok := p.Parse(req)
	if ok {
		t.Fatal("expected malformed bad_gzip")
	}
}

func TestParse_JSONPartReplacesAnnotations(t *testing.T) {
	p := newTestParser()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	first, _ := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="first"`},
		"Content-Type":        {"application/json"},
	})
	_, _ = first.Write([]byte(`{"ProductName":"Widget"}`))
	part, _ := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="extra"`},
		"Content-Type":        {"application/json"},
	})
	_, _ = part.Write([]byte(`{"a":"1","b":"2"}`))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())
	req.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
	req.ContentLength = int64(buf.Len())

	annotations, _, ok := p.Parse(req)
	if !ok {
		t.Fatal("expected Parse to succeed")
	}
	if _, exists := annotations["ProductName"]; exists {
		t.Fatalf("expected JSON part to wholesale-replace annotations, ProductName survived: %+v", annotations)
	}
	if annotations["a"] != "1" || annotations["b"] != "2" {
		t.Fatalf("unexpected annotations after JSON replace: %+v", annotations)
	}
}

func TestParse_HasJSONAndKV(t *testing.T) {
	p := newTestParser()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("ProductName", "Widget")
	part, _ := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="extra"`},
		"Content-Type":        {"application/json"},
	})
	_, _ = part.Write([]byte(`{"a":"1"}`))
	// second plain kv field after the json part
	_ = w.WriteField("AnotherKV", "value")
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())
	req.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
	req.ContentLength = int64(buf.Len())

	_, _, ok := p.Parse(req)
	if ok {
		t.Fatal("expected malformed has_json_and_kv")
	}
}

func TestSanitizeDumpName(t *testing.T) {
	cases := map[string]string{
		"upload_file_minidump": "upload_file_minidump",
		"../../etc/passwd":     "______etc_passwd",
		"":                     "_",
	}
	for in, want := range cases {
		if got := sanitizeDumpName(in); got != want {
			t.Errorf("sanitizeDumpName(%q) = %q, want %q", in, got, want)
		}
	}
}
