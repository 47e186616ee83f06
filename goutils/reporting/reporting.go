package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/httpclient"
	"storage-dashboard/goutils/settings"
)

type Service interface {
	Report(issueType datamodel.IssueType, fileID string, extra map[string]interface{})
}

type IssueReporter struct {
	httpClient       *retryablehttp.Client
	slackRateLimiter *rate.Limiter
	settingsObj      *settings.SettingsObj
}

var _ Service = (*IssueReporter)(nil)

func InitIssueReporter(settingsObj *settings.SettingsObj) *IssueReporter {
	client := &IssueReporter{
		httpClient:       httpclient.GetDefaultHTTPClient(settingsObj),
		slackRateLimiter: rate.NewLimiter(1, 1),
		settingsObj:      settingsObj,
	}

	return client
}

func (i *IssueReporter) Report(issueType datamodel.IssueType, fileID string, extra map[string]interface{}) {
	extraData, err := json.Marshal(extra)
	if err != nil {
		log.WithError(err).Error("failed to marshal extra data")
	}

	issue := &datamodel.DashboardIssue{
		InstanceID:      i.settingsObj.InstanceId,
		IssueType:       string(issueType),
		FileID:          fileID,
		TimeOfReporting: strconv.FormatInt(time.Now().Unix(), 10),
		Extra:           string(extraData),
	}

	log.WithField("issue", issue).Debug("reporting issue")

	issueBytes, err := json.Marshal(issue)
	if err != nil {
		log.WithError(err).Error("failed to json marshal issue")

		return
	}

	wg := sync.WaitGroup{}
	wg.Add(2)

	go func() {
		defer wg.Done()
		i.ReportOnSlack(issueBytes)
	}()

	go func() {
		defer wg.Done()
		i.ReportToIssueEndpoint(issueBytes)
	}()

	wg.Wait()
}

func (i *IssueReporter) ReportOnSlack(issue []byte) {
	if i.settingsObj.Reporting.SlackWebhookURL == "" {
		return
	}

	err := i.slackRateLimiter.Wait(context.Background())
	if err != nil {
		log.WithError(err).Error("failed to wait for slack rate limiter")

		return
	}

	i.post("slack webhook", i.settingsObj.Reporting.SlackWebhookURL, issue)
}

func (i *IssueReporter) ReportToIssueEndpoint(issue []byte) {
	if i.settingsObj.Reporting.IssueEndpoint == "" {
		return
	}

	i.post("issue endpoint", i.settingsObj.Reporting.IssueEndpoint, issue)
}

func (i *IssueReporter) post(target, url string, issue []byte) {
	l := log.WithField("target", target)

	req, err := retryablehttp.NewRequest(http.MethodPost, url, bytes.NewBuffer(issue))
	if err != nil {
		l.WithError(err).Error("failed to create issue request")

		return
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("accept", "application/json")

	l.Debug("sending issue")

	res, err := i.httpClient.Do(req)
	if err != nil {
		l.WithError(err).Error("failed to send issue")

		return
	}

	defer res.Body.Close()

	resp, err := io.ReadAll(res.Body)
	if err != nil {
		l.WithError(err).Error("failed to read issue response body")
	}

	if res.StatusCode == http.StatusOK {
		l.WithField("resp", string(resp)).Debug("status ok response for issue")

		return
	}

	l.WithField("status", res.StatusCode).WithField("resp", string(resp)).Info("unexpected response for issue")
}
