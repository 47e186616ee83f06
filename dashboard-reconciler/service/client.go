package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/goutils/datamodel"
)

var (
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrMalformedSnapshot   = errors.New("malformed snapshot")
	ErrAuditRequestFailed  = errors.New("audit request failed")
)

// SnapshotFetcher reads the full network state from the metaserver.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*datamodel.Snapshot, error)
}

// Auditor asks the metaserver to verify one stored block.
type Auditor interface {
	AuditBlock(ctx context.Context, fileID, blockID string) (bool, error)
}

type MetaserverClient struct {
	httpClient   *retryablehttp.Client
	snapshotURL  string
	auditBaseURL string
	validate     *validator.Validate
}

var (
	_ SnapshotFetcher = (*MetaserverClient)(nil)
	_ Auditor         = (*MetaserverClient)(nil)
)

func NewMetaserverClient(httpClient *retryablehttp.Client, snapshotURL, auditBaseURL string) *MetaserverClient {
	return &MetaserverClient{
		httpClient:   httpClient,
		snapshotURL:  snapshotURL,
		auditBaseURL: auditBaseURL,
		validate:     validator.New(),
	}
}

func (c *MetaserverClient) FetchSnapshot(ctx context.Context) (*datamodel.Snapshot, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.snapshotURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotUnavailable, err.Error())
	}

	req.Header.Add("accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotUnavailable, err.Error())
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %s", ErrSnapshotUnavailable, err.Error())
	}

	if res.StatusCode != http.StatusOK {
		log.WithField("status", res.StatusCode).WithField("url", c.snapshotURL).Debug("unexpected snapshot response status")

		return nil, fmt.Errorf("%w: status %d", ErrSnapshotUnavailable, res.StatusCode)
	}

	snapshot := new(datamodel.Snapshot)

	err = json.Unmarshal(body, snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSnapshot, err.Error())
	}

	err = c.validate.Struct(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSnapshot, err.Error())
	}

	return snapshot, nil
}

func (c *MetaserverClient) AuditBlock(ctx context.Context, fileID, blockID string) (bool, error) {
	auditURL := c.auditBaseURL + "/" + url.PathEscape(fileID) + "/" + url.PathEscape(blockID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, auditURL, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrAuditRequestFailed, err.Error())
	}

	req.Header.Add("accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrAuditRequestFailed, err.Error())
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrAuditRequestFailed, res.StatusCode)
	}

	resp := new(datamodel.AuditResp)

	err = json.NewDecoder(res.Body).Decode(resp)
	if err != nil {
		return false, fmt.Errorf("%w: decoding response: %s", ErrAuditRequestFailed, err.Error())
	}

	return resp.Success, nil
}
