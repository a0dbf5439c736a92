// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package operation

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
)

// Response is the generic reply envelope of the name server admin API.
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

func tableWriter(headers []string) table.Writer {
	header := table.Row{}
	for _, s := range headers {
		header = append(header, s)
	}
	t := table.NewWriter()
	t.AppendHeader(header)
	return t
}

func httpUtil(method, url string, request interface{}, data interface{}) error {
	var body io.Reader
	if request != nil {
		b, err := json.Marshal(request)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{}).Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var response Response
	if err := json.Unmarshal(b, &response); err != nil {
		return err
	}
	if response.Code != 0 {
		return errors.Errorf("request failed, code:%d, msg:%s", response.Code, response.Msg)
	}
	if data != nil && len(response.Data) > 0 {
		return json.Unmarshal(response.Data, data)
	}
	return nil
}
