package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/crashcollector/collector/internal/crashreport"
)

// S3 is a CrashStorage backed by an S3-compatible object store, signed with
// a hand-rolled SigV4 implementation (no AWS SDK dependency appears
// anywhere in the reference corpus this module is grounded on).
//
// Each crash is stored as one annotations object plus one object per dump,
// keyed by crash id rather than by tenant+object-key.
type S3 struct {
	opts S3Options
	hc   *http.Client
	u    *url.URL
}

type S3Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Prefix       string
	HTTPTimeout  time.Duration
	MaxBodyBytes int64
}

var (
	ErrS3Invalid  = errors.New("storage: s3 invalid input")
	ErrS3HTTP     = errors.New("storage: s3 http error")
	ErrS3NotFound = errors.New("storage: s3 object not found")
)

func NewS3(opts S3Options) (*S3, error) {
	o := normalizeS3Options(opts)
	if o.Endpoint == "" || o.Bucket == "" || o.AccessKey == "" || o.SecretKey == "" {
		return nil, fmt.Errorf("%w: endpoint/bucket/access_key/secret_key required", ErrS3Invalid)
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint parse: %v", ErrS3Invalid, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: endpoint scheme must be http/https", ErrS3Invalid)
	}
	return &S3{opts: o, hc: &http.Client{Timeout: o.HTTPTimeout}, u: u}, nil
}

func (s *S3) Save(ctx context.Context, submission *crashreport.CrashSubmission) error {
	annotationsJSON, err := canonicalJSON(submission.Annotations)
	if err != nil {
		return fmt.Errorf("storage: marshal annotations: %w", err)
	}
	if err := s.put(ctx, s.annotationsKey(submission.CrashID), "application/json", annotationsJSON); err != nil {
		return err
	}
	for name, body := range submission.Dumps {
		if err := s.put(ctx, s.dumpKey(submission.CrashID, name), "application/octet-stream", body); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: new request: %v", ErrS3HTTP, err)
	}
	if err := s.sign(req, sha256Hex(nil)); err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do: %v", ErrS3HTTP, err)
	}
	defer resp.Body.Close()
	return nil
}

func (s *S3) annotationsKey(crashID string) string {
	return crashID + "/annotations.json"
}

func (s *S3) dumpKey(crashID, name string) string {
	return crashID + "/dumps/" + name
}

func (s *S3) objectPath(objectKey string) (string, error) {
	prefix := strings.Trim(strings.TrimSpace(s.opts.Prefix), "/")
	if prefix == "" {
		prefix = "crashes"
	}
	objectKey = strings.Trim(strings.TrimSpace(objectKey), "/")
	if objectKey == "" || strings.Contains(objectKey, "..") {
		return "", fmt.Errorf("%w: invalid object key", ErrS3Invalid)
	}
	parts := append([]string{s.opts.Bucket, prefix}, strings.Split(objectKey, "/")...)
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: empty path segment", ErrS3Invalid)
		}
		escaped = append(escaped, url.PathEscape(p))
	}
	return "/" + strings.Join(escaped, "/"), nil
}

func (s *S3) put(ctx context.Context, objectKey, contentType string, data []byte) error {
	if s.opts.MaxBodyBytes > 0 && int64(len(data)) > s.opts.MaxBodyBytes {
		return fmt.Errorf("%w: body exceeds max bytes", ErrS3Invalid)
	}
	path, err := s.objectPath(objectKey)
	if err != nil {
		return err
	}
	reqURL := s.u.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL.String(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: new request: %v", ErrS3HTTP, err)
	}
	req.Header.Set("Content-Type", contentType)
	payloadHash := sha256Hex(data)
	if err := s.sign(req, payloadHash); err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do: %v", ErrS3HTTP, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
		return fmt.Errorf("%w: put status=%d body=%s", ErrS3HTTP, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (s *S3) sign(req *http.Request, payloadHashHex string) error {
	t := time.Now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	region := s.opts.Region
	service := "s3"

	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHashHex)
	if s.opts.SessionToken != "" {
		req.Header.Set("x-amz-security-token", s.opts.SessionToken)
	}

	canonicalHdrs, signedHeaders := canonicalHeaders(req.Header)
	canonicalURI := req.URL.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		req.URL.RawQuery,
		canonicalHdrs,
		signedHeaders,
		payloadHashHex,
	}, "\n")
	crHash := sha256Hex([]byte(canonicalRequest))
	scope := strings.Join([]string{dateStamp, region, service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{"AWS4-HMAC-SHA256", amzDate, scope, crHash}, "\n")

	signingKey := deriveSigningKey(s.opts.SecretKey, dateStamp, region, service)
	sig := hmacSHA256Hex(signingKey, []byte(stringToSign))
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.opts.AccessKey, scope, signedHeaders, sig,
	))
	return nil
}

func canonicalHeaders(h http.Header) (canonical string, signedHeaders string) {
	names := make([]string, 0, len(h))
	seen := make(map[string]struct{}, len(h))
	for k := range h {
		kl := strings.ToLower(strings.TrimSpace(k))
		if kl == "" {
			continue
		}
		if _, ok := seen[kl]; ok {
			continue
		}
		seen[kl] = struct{}{}
		names = append(names, kl)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		val := strings.Join(headerValuesCaseInsensitive(h, name), ",")
		val = strings.TrimSpace(val)
		val = strings.Join(strings.Fields(val), " ")
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(val)
		b.WriteString("\n")
	}
	return b.String(), strings.Join(names, ";")
}

func headerValuesCaseInsensitive(h http.Header, lowerName string) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.ToLower(k) == lowerName {
			cp := make([]string, len(h[k]))
			copy(cp, h[k])
			return cp
		}
	}
	return nil
}

func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write(data)
	return m.Sum(nil)
}

func hmacSHA256Hex(key, data []byte) string {
	return hex.EncodeToString(hmacSHA256(key, data))
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func normalizeS3Options(opts S3Options) S3Options {
	o := opts
	o.Endpoint = strings.TrimSpace(o.Endpoint)
	o.Bucket = strings.TrimSpace(o.Bucket)
	o.AccessKey = strings.TrimSpace(o.AccessKey)
	o.SecretKey = strings.TrimSpace(o.SecretKey)
	o.SessionToken = strings.TrimSpace(o.SessionToken)
	if strings.TrimSpace(o.Region) == "" {
		o.Region = "us-east-1"
	}
	o.Prefix = strings.Trim(strings.TrimSpace(o.Prefix), "/")
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 20 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 64 * 1024 * 1024
	}
	return o
}
