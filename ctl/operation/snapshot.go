// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package operation

import (
	"fmt"
	"net/http"

	"github.com/spf13/viper"
)

type makeSnapshotRequest struct {
	Name string `json:"name"`
	PID  uint32 `json:"pid"`
}

func snapshotURL() string {
	return HTTP + viper.GetString(RootMetaAddr) + APISnapshot
}

func SnapshotMake(name string, pid uint32) {
	if err := httpUtil(http.MethodPost, snapshotURL(), makeSnapshotRequest{Name: name, PID: pid}, nil); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("ok")
}
