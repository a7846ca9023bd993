/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

// Small client tool: submits one binary to the API, polls until the job
// settles, and prints the result document to stdout.

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

type submitResponse struct {
	JobId  string `json:"job_id"`
	Status string `json:"status"`
	Cached bool   `json:"cached"`
}

type statusResponse struct {
	JobId        string          `json:"job_id"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	Stage        string          `json:"stage"`
	ErrorMessage string          `json:"error_message"`
	Result       json.RawMessage `json:"result"`
}

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "API server base URL")
	file := flag.String("file", "", "Path of the binary to submit")
	depth := flag.String("depth", "standard", "Analysis depth: basic|standard|comprehensive|deep")
	detail := flag.String("detail", "standard", "Translation detail: basic|standard|detailed")
	provider := flag.String("provider", "", "Provider name; empty uses the server default")
	token := flag.String("token", "", "Session token, if the server requires one")
	poll := flag.Duration("poll", 2*time.Second, "Status poll interval")
	wait := flag.Duration("wait", 30*time.Minute, "How long to wait for completion")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *file == "" {
		logrus.Fatal("-file is required")
	}

	client := &http.Client{Timeout: 60 * time.Second}
	jobId, err := submit(client, *server, *token, *file, *depth, *detail, *provider)
	if err != nil {
		logrus.Fatalf("submit failed: %v", err)
	}
	logrus.Infof("submitted job %s", jobId)

	deadline := time.Now().Add(*wait)
	for {
		if time.Now().After(deadline) {
			logrus.Fatalf("job %s did not settle within %s", jobId, *wait)
		}
		status, err := getStatus(client, *server, *token, jobId)
		if err != nil {
			logrus.Warnf("status poll failed: %v", err)
			time.Sleep(*poll)
			continue
		}
		logrus.Debugf("job %s: %s %d%% (%s)", jobId, status.Status, status.Progress, status.Stage)
		switch status.Status {
		case "completed":
			fmt.Println(string(status.Result))
			logrus.Infof("job %s completed", jobId)
			return
		case "failed", "cancelled":
			logrus.Fatalf("job %s %s: %s", jobId, status.Status, status.ErrorMessage)
		}
		time.Sleep(*poll)
	}
}

func submit(client *http.Client, server, token, file, depth, detail, provider string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(part, f); err != nil {
		return "", err
	}
	fields := map[string]string{
		"analysis_depth":     depth,
		"translation_detail": detail,
	}
	if provider != "" {
		fields["provider_id"] = provider
	}
	for k, v := range fields {
		if err = writer.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err = writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, server+"/api/v1/jobs", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rsp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer rsp.Body.Close()
	data, _ := io.ReadAll(rsp.Body)
	if rsp.StatusCode != http.StatusAccepted && rsp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", rsp.StatusCode, string(data))
	}
	var parsed submitResponse
	if err = json.Unmarshal(data, &parsed); err != nil {
		return "", err
	}
	return parsed.JobId, nil
}

func getStatus(client *http.Client, server, token, jobId string) (*statusResponse, error) {
	req, err := http.NewRequest(http.MethodGet, server+"/api/v1/jobs/"+jobId, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rsp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, err
	}
	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", rsp.StatusCode, string(data))
	}
	var parsed statusResponse
	if err = json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
