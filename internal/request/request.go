/*
Copyright 2025 Kagurabot Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package request

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// DecodeError marks a response that arrived over the wire but whose body did
// not parse as the expected JSON shape. Callers use this to tell schema drift
// apart from transport failure. The raw body is retained for diagnosis.
type DecodeError struct {
	Err  error
	Body []byte
}

func (e *DecodeError) Error() string {
	return "unexpected response shape: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a DecodeError and returns it.
func IsDecodeError(err error) (*DecodeError, bool) {
	de, ok := err.(*DecodeError)
	return de, ok
}

// NewClient returns an HTTP client with the given request timeout. Every
// outbound call in the core carries a fixed timeout so that a hung mall
// endpoint surfaces as a classifiable network error instead of a stuck job.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
//
// Parameters:
// - payload interface{}: The data structure to be serialized into JSON.
//
// Returns:
// - *bytes.Buffer: The JSON-encoded payload wrapped in a bytes buffer.
// - error: An error if the JSON marshalling process fails.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// Call sends the prepared request with the given client and decodes the JSON
// response body into the provided structure. The Content-Type header is set
// to application/json.
//
// A transport failure is returned as-is; a body that fails to decode is
// returned as a *DecodeError carrying the raw bytes.
//
// Parameters:
// - client *http.Client: The client to send with; nil falls back to a default client.
// - req *http.Request: The prepared HTTP request to send.
// - response interface{}: The target structure to hold the decoded JSON response.
//
// Returns:
// - *http.Response: The raw HTTP response object.
// - error: A transport error or *DecodeError.
func Call(client *http.Client, req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}

	if err := json.Unmarshal(body, response); err != nil {
		return resp, &DecodeError{Err: err, Body: body}
	}
	return resp, nil
}
