// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package operation

import (
	"fmt"
	"net/http"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"
)

type TabletStatus struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	AgeMs    int64  `json:"ageMs"`
}

type LeaderInfo struct {
	LeaderEndpoint string `json:"leaderEndpoint"`
	IsLocal        bool   `json:"isLocal"`
}

func tabletsURL() string {
	return HTTP + viper.GetString(RootMetaAddr) + APITablets
}

func leaderURL() string {
	return HTTP + viper.GetString(RootMetaAddr) + APILeader
}

func TabletsList() {
	var tablets []TabletStatus
	if err := httpUtil(http.MethodGet, tabletsURL(), nil, &tablets); err != nil {
		fmt.Println(err)
		return
	}

	t := tableWriter(tabletsListHeader)
	for _, tabletStatus := range tablets {
		t.AppendRow(table.Row{tabletStatus.Endpoint, tabletStatus.State, tabletStatus.AgeMs})
	}
	fmt.Println(t.Render())
}

func LeaderShow() {
	var leader LeaderInfo
	if err := httpUtil(http.MethodGet, leaderURL(), nil, &leader); err != nil {
		fmt.Println(err)
		return
	}

	t := tableWriter(leaderHeader)
	t.AppendRow(table.Row{leader.LeaderEndpoint, leader.IsLocal})
	fmt.Println(t.Render())
}
