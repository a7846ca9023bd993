/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/backoff"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/httpclient"
)

// CallbackPayload is what a completion callback receives.
type CallbackPayload struct {
	JobId         string `json:"job_id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	ResultRef     string `json:"result_ref,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CorrelationId string `json:"correlation_id,omitempty"`
}

// Notifier delivers completion callbacks to the URL a job was submitted
// with. Delivery is best-effort with a short retry budget.
type Notifier struct {
	client httpclient.Interface
}

func NewNotifier() *Notifier {
	return &Notifier{client: httpclient.NewHttpClient()}
}

// Notify posts the job's terminal state to its callback URL, if any.
func (n *Notifier) Notify(job *dbclient.Job) {
	if job == nil || !job.CallbackURL.Valid || job.CallbackURL.String == "" {
		return
	}
	payload := CallbackPayload{
		JobId:         job.JobId,
		Status:        job.Status,
		Progress:      job.Progress,
		ResultRef:     job.ResultRef.String,
		ErrorMessage:  job.ErrorMessage.String,
		CorrelationId: job.CorrelationId.String,
	}
	maxElapsed := time.Duration(config.GetCallbackTimeoutSecond()) * time.Second
	err := backoff.Retry(func() error {
		result, err := n.client.Post(job.CallbackURL.String, payload)
		if err != nil {
			return err
		}
		if !result.IsSuccess() {
			return fmt.Errorf("callback returned status %d", result.StatusCode)
		}
		return nil
	}, maxElapsed, maxElapsed/2)
	if err != nil {
		klog.ErrorS(err, "completion callback failed", "job", job.JobId, "url", job.CallbackURL.String)
		return
	}
	klog.Infof("delivered completion callback for job %s", job.JobId)
}
