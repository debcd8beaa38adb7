/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package sigv4 signs HTTP requests with AWS Signature Version 4.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/cowdogmoo/dockyard/errors"
)

const (
	// Algorithm is the signing algorithm name.
	Algorithm = "AWS4-HMAC-SHA256"

	timeFormat  = "20060102T150405Z"
	dateFormat  = "20060102"
	scopeSuffix = "aws4_request"

	headerDate          = "X-Amz-Date"
	headerSecurityToken = "X-Amz-Security-Token"
)

// Signer signs requests for one region and service.
type Signer struct {
	Region  string
	Service string
	// Now returns the signing time; time.Now when nil.
	Now func() time.Time
}

// New returns a signer for region and service.
func New(region, service string) *Signer {
	return &Signer{Region: region, Service: service}
}

// Signature holds the intermediate values of one signing pass.
type Signature struct {
	CanonicalRequest string
	StringToSign     string
	SignedHeaders    string
	Scope            string
	Timestamp        string
	Signature        string
	Authorization    string
}

// Sign signs req, whose body is body, with creds. The session token, when
// set, is added as X-Amz-Security-Token before signing. Authorization is
// set on req, and X-Amz-Date when the request does not carry it.
func (s *Signer) Sign(req *http.Request, body []byte, creds aws.Credentials) (*Signature, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.SignAt(req, body, creds, now())
}

// SignAt is Sign at a fixed time.
func (s *Signer) SignAt(req *http.Request, body []byte, creds aws.Credentials, at time.Time) (*Signature, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errors.Credential("sign request", s.Service, fmt.Errorf("missing AWS access key"))
	}
	if s.Region == "" || s.Service == "" {
		return nil, errors.Configuration("sign request", req.URL.String(), fmt.Errorf("region and service are required"))
	}

	if creds.SessionToken != "" {
		req.Header.Set(headerSecurityToken, creds.SessionToken)
	}

	at = at.UTC()
	sig := &Signature{Timestamp: at.Format(timeFormat)}
	date := at.Format(dateFormat)
	sig.Scope = strings.Join([]string{date, s.Region, s.Service, scopeSuffix}, "/")

	headers, signed := canonicalHeaders(req)
	sig.SignedHeaders = signed
	sig.CanonicalRequest = strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		headers,
		signed,
		hashHex(body),
	}, "\n")

	sig.StringToSign = strings.Join([]string{
		Algorithm,
		sig.Timestamp,
		sig.Scope,
		hashHex([]byte(sig.CanonicalRequest)),
	}, "\n")

	key := signingKey(creds.SecretAccessKey, date, s.Region, s.Service)
	sig.Signature = hex.EncodeToString(hmacSHA256(key, sig.StringToSign))
	sig.Authorization = fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, creds.AccessKeyID, sig.Scope, sig.SignedHeaders, sig.Signature)

	req.Header.Set("Authorization", sig.Authorization)
	if req.Header.Get(headerDate) == "" {
		req.Header.Set(headerDate, sig.Timestamp)
	}
	return sig, nil
}

// signingKey derives the key through the four chained HMACs.
func signingKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), date)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, scopeSuffix)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

func canonicalQuery(u *url.URL) string {
	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(parts, "&")
}

// escape percent-encodes everything but unreserved characters.
func escape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "%7E", "~")
}

// canonicalHeaders returns the canonical header block and the signed
// header list. Every header present at signing time is signed, plus host.
func canonicalHeaders(req *http.Request) (string, string) {
	values := make(map[string]string, len(req.Header)+1)
	for name, vs := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		trimmed := make([]string, len(vs))
		for i, v := range vs {
			trimmed[i] = strings.Join(strings.Fields(v), " ")
		}
		values[lower] = strings.Join(trimmed, ",")
	}
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	values["host"] = host

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(values[name])
		sb.WriteByte('\n')
	}
	return sb.String(), strings.Join(names, ";")
}
