/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package httpclient

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Interface interface {
	Get(url string, headers ...string) (*Result, error)
	Post(url string, body interface{}, headers ...string) (*Result, error)
	Put(url string, body interface{}, headers ...string) (*Result, error)
	Delete(url string, headers ...string) (*Result, error)
	Do(req *http.Request) (*Result, error)
}

// client wraps the standard http.Client with retry and simplified
// request building.
type client struct {
	*http.Client
}

const (
	DefaultTimeout = 30 * time.Second
	DefaultMaxTry  = 2
)

var (
	once     sync.Once
	instance *client
)

// NewHttpClient returns the process-wide HTTP client singleton. The client
// pools connections and skips TLS verification for self-signed callback
// endpoints.
func NewHttpClient() Interface {
	once.Do(func() {
		instance = &client{
			Client: &http.Client{
				Timeout: DefaultTimeout,
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{
						InsecureSkipVerify: true,
					},
					TLSHandshakeTimeout:   10 * time.Second,
					MaxIdleConns:          128,
					MaxConnsPerHost:       64,
					IdleConnTimeout:       1 * time.Minute,
					ExpectContinueTimeout: 10 * time.Second,
				},
			},
		}
	})
	return instance
}

func (c *client) Get(url string, headers ...string) (*Result, error) {
	return c.do(url, http.MethodGet, nil, headers...)
}

func (c *client) Post(url string, body interface{}, headers ...string) (*Result, error) {
	return c.do(url, http.MethodPost, body, headers...)
}

func (c *client) Put(url string, body interface{}, headers ...string) (*Result, error) {
	return c.do(url, http.MethodPut, body, headers...)
}

func (c *client) Delete(url string, headers ...string) (*Result, error) {
	return c.do(url, http.MethodDelete, nil, headers...)
}

func (c *client) do(url, method string, body interface{}, headers ...string) (*Result, error) {
	req, err := BuildRequest(url, method, body, headers...)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do executes the request, retrying transport failures up to DefaultMaxTry
// times. On success the response body is fully read and closed.
func (c *client) Do(req *http.Request) (*Result, error) {
	var rsp *http.Response
	var err error
	for i := 0; i < DefaultMaxTry; i++ {
		if rsp, err = c.Client.Do(req); err == nil {
			break
		} else if i == DefaultMaxTry-1 {
			return nil, err
		}
	}
	if rsp == nil {
		return nil, fmt.Errorf("no result")
	}
	data, err := io.ReadAll(rsp.Body)
	defer rsp.Body.Close()
	if err != nil {
		return nil, err
	}
	return &Result{StatusCode: rsp.StatusCode, Body: data, Header: rsp.Header}, nil
}

// BuildRequest creates a request for the given URL, defaulting the scheme to
// https when absent. Headers are passed as key/value pairs; Content-Type is
// always application/json.
func BuildRequest(url, method string, body interface{}, headers ...string) (*http.Request, error) {
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	reader, err := cvtIOReader(body)
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(headers); i += 2 {
		if i+1 >= len(headers) {
			break
		}
		request.Header.Set(headers[i], headers[i+1])
	}
	request.Header.Set("Content-Type", "application/json")
	return request, nil
}

func cvtIOReader(body interface{}) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	var reader io.Reader
	switch b := body.(type) {
	case string:
		reader = strings.NewReader(b)
	case io.Reader:
		reader = b
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	return reader, nil
}
