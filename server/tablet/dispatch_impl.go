// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package tablet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/coderr"
	"github.com/pkg/errors"
)

var ErrDispatch = coderr.NewCodeError(coderr.Internal, "tablet dispatch failed")

// httpClient is the HTTP/JSON implementation of Client. One instance per
// tablet endpoint; all instances share a connection-pooled http.Client.
type httpClient struct {
	endpoint string
	client   *http.Client
}

var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// NewHTTPClient is the default Factory.
func NewHTTPClient(endpoint string) Client {
	return &httpClient{
		endpoint: endpoint,
		client:   sharedHTTPClient,
	}
}

func (c *httpClient) Endpoint() string {
	return c.endpoint
}

func (c *httpClient) CreateTable(ctx context.Context, request CreateTableRequest) error {
	return c.call(ctx, "createTable", request, nil)
}

func (c *httpClient) MakeSnapshot(ctx context.Context, tid, pid uint32) error {
	req := struct {
		TID uint32 `json:"tid"`
		PID uint32 `json:"pid"`
	}{TID: tid, PID: pid}
	return c.call(ctx, "makeSnapshot", req, nil)
}

func (c *httpClient) GetTaskStatus(ctx context.Context) ([]TaskStatusEntry, error) {
	var entries []TaskStatusEntry
	if err := c.call(ctx, "getTaskStatus", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *httpClient) DeleteOPTask(ctx context.Context, opIDs []uint64) error {
	req := struct {
		OpIDs []uint64 `json:"opIDs"`
	}{OpIDs: opIDs}
	return c.call(ctx, "deleteOPTask", req, nil)
}

type respHeader struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (c *httpClient) call(ctx context.Context, method string, request, result any) error {
	url := fmt.Sprintf("http://%s/api/v1/%s", c.endpoint, method)

	var body io.Reader
	if request != nil {
		b, err := json.Marshal(request)
		if err != nil {
			return errors.WithMessagef(err, "marshal %s request", method)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return errors.WithMessagef(err, "build %s request", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.WithMessagef(err, "%s, endpoint:%s", method, c.endpoint)
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errors.WithMessagef(err, "read %s response", method)
	}

	var header respHeader
	if err := json.Unmarshal(b, &header); err != nil {
		return errors.WithMessagef(err, "decode %s response, body:%s", method, b)
	}
	if header.Code != 0 {
		return ErrDispatch.WithCausef("%s, endpoint:%s, code:%d, msg:%s", method, c.endpoint, header.Code, header.Msg)
	}

	if result != nil && len(header.Data) > 0 {
		if err := json.Unmarshal(header.Data, result); err != nil {
			return errors.WithMessagef(err, "decode %s response data", method)
		}
	}
	return nil
}
