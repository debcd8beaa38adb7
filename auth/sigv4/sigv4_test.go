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

package sigv4

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dockyard/errors"
)

var (
	testBody  = []byte(`{"registryIds":["012345678901"]}`)
	testTime  = time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)
	testCreds = aws.Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	}
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://ecr.us-east-1.amazonaws.com/", bytes.NewReader(testBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", "AmazonEC2ContainerRegistry_V20150921.GetAuthorizationToken")
	return req
}

func TestSignKnownAnswer(t *testing.T) {
	req := newRequest(t)

	sig, err := New("us-east-1", "service").SignAt(req, testBody, testCreds, testTime)
	require.NoError(t, err)

	assert.Equal(t, "content-type;host;x-amz-target", sig.SignedHeaders)
	assert.Equal(t, "20150830/us-east-1/service/aws4_request", sig.Scope)
	assert.Equal(t, "20150830T123600Z", sig.Timestamp)
	assert.Equal(t, "AWS4-HMAC-SHA256\n20150830T123600Z\n20150830/us-east-1/service/aws4_request\n"+
		"7c945a283983ca83301de46103427b7035344a4b0cfddd886e3d94b4bed7df5e", sig.StringToSign)
	assert.Equal(t, "89cd649587898a1913ced5c519425905b192c4662212d37e689e6c20e53edbbd", sig.Signature)

	const authorization = "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, " +
		"SignedHeaders=content-type;host;x-amz-target, " +
		"Signature=89cd649587898a1913ced5c519425905b192c4662212d37e689e6c20e53edbbd"
	assert.Equal(t, authorization, sig.Authorization)
	assert.Equal(t, authorization, req.Header.Get("Authorization"))
	assert.Equal(t, "20150830T123600Z", req.Header.Get("X-Amz-Date"), "date is added after signing")
}

func TestSignCanonicalRequest(t *testing.T) {
	req := newRequest(t)
	sig, err := New("us-east-1", "service").SignAt(req, testBody, testCreds, testTime)
	require.NoError(t, err)

	expected := "POST\n/\n\n" +
		"content-type:application/x-amz-json-1.1\n" +
		"host:ecr.us-east-1.amazonaws.com\n" +
		"x-amz-target:AmazonEC2ContainerRegistry_V20150921.GetAuthorizationToken\n\n" +
		"content-type;host;x-amz-target\n" +
		"1531fbe1f1c4e3437223a1583a6d21d404acf9d910262f629d73d6bf55a545bd"
	assert.Equal(t, expected, sig.CanonicalRequest)
}

func TestSignSessionToken(t *testing.T) {
	req := newRequest(t)
	creds := testCreds
	creds.SessionToken = "token"

	sig, err := New("us-east-1", "ecr").SignAt(req, testBody, creds, testTime)
	require.NoError(t, err)

	assert.Equal(t, "token", req.Header.Get("X-Amz-Security-Token"))
	assert.Equal(t, "content-type;host;x-amz-security-token;x-amz-target", sig.SignedHeaders)
	assert.NotEqual(t, "89cd649587898a1913ced5c519425905b192c4662212d37e689e6c20e53edbbd", sig.Signature)
}

func TestSignExistingDateIsSigned(t *testing.T) {
	req := newRequest(t)
	req.Header.Set("X-Amz-Date", "20150830T123600Z")

	sig, err := New("us-east-1", "service").SignAt(req, testBody, testCreds, testTime)
	require.NoError(t, err)
	assert.Equal(t, "content-type;host;x-amz-date;x-amz-target", sig.SignedHeaders)
	assert.Equal(t, "20150830T123600Z", req.Header.Get("X-Amz-Date"))
}

func TestSignQueryAndPath(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.amazonaws.com/a%20b?z=1&a=two+words&a=1&t=~x", nil)
	require.NoError(t, err)

	sig, err := New("eu-west-1", "execute-api").SignAt(req, nil, testCreds, testTime)
	require.NoError(t, err)

	assert.Contains(t, sig.CanonicalRequest, "GET\n/a%20b\na=1&a=two%20words&t=~x&z=1\nhost:example.amazonaws.com\n")
	assert.Contains(t, sig.CanonicalRequest,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", "empty payload hash")
}

func TestSignUsesNow(t *testing.T) {
	s := New("us-east-1", "service")
	s.Now = func() time.Time { return testTime }

	sig, err := s.Sign(newRequest(t), testBody, testCreds)
	require.NoError(t, err)
	assert.Equal(t, "89cd649587898a1913ced5c519425905b192c4662212d37e689e6c20e53edbbd", sig.Signature)
}

func TestSignErrors(t *testing.T) {
	tests := []struct {
		name   string
		signer *Signer
		creds  aws.Credentials
		kind   errors.Kind
	}{
		{"missing key", New("us-east-1", "ecr"), aws.Credentials{}, errors.KindCredential},
		{"missing secret", New("us-east-1", "ecr"), aws.Credentials{AccessKeyID: "AKID"}, errors.KindCredential},
		{"missing region", New("", "ecr"), testCreds, errors.KindConfiguration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.signer.SignAt(newRequest(t), testBody, tc.creds, testTime)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, tc.kind))
		})
	}
}
