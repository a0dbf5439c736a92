// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package operation

const (
	HTTP = "http://"
	API  = "/api/v1"

	APITablets  = API + "/tablets"
	APITable    = API + "/table"
	APISnapshot = API + "/snapshot"
	APILeader   = API + "/leader"

	RootMetaAddr = "meta_addr"
)

var tabletsListHeader = []string{"Endpoint", "State", "AgeMs"}
var leaderHeader = []string{"LeaderEndpoint", "IsLocal"}
