// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package operation

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type TablePartition struct {
	PID      uint32 `json:"pid"`
	Endpoint string `json:"endpoint"`
	IsLeader bool   `json:"isLeader"`
}

type TableMeta struct {
	Name           string           `json:"name"`
	TTL            uint64           `json:"ttl"`
	TablePartition []TablePartition `json:"tablePartition"`
}

type createTableRequest struct {
	TableMeta TableMeta `json:"tableMeta"`
}

func tableURL() string {
	return HTTP + viper.GetString(RootMetaAddr) + APITable
}

// ParsePartitions parses a partition list of the form
// "pid:endpoint:leader,pid:endpoint:follower".
func ParsePartitions(raw string) ([]TablePartition, error) {
	parts := strings.Split(raw, ",")
	partitions := make([]TablePartition, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 4 {
			return nil, errors.Errorf("bad partition %q, want pid:host:port:role", part)
		}
		pid, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Errorf("bad pid in partition %q", part)
		}
		role := fields[3]
		if role != "leader" && role != "follower" {
			return nil, errors.Errorf("bad role %q, want leader or follower", role)
		}
		partitions = append(partitions, TablePartition{
			PID:      uint32(pid),
			Endpoint: fields[1] + ":" + fields[2],
			IsLeader: role == "leader",
		})
	}
	return partitions, nil
}

func TableCreate(name string, ttl uint64, rawPartitions string) {
	partitions, err := ParsePartitions(rawPartitions)
	if err != nil {
		fmt.Println(err)
		return
	}

	request := createTableRequest{TableMeta: TableMeta{
		Name:           name,
		TTL:            ttl,
		TablePartition: partitions,
	}}
	if err := httpUtil(http.MethodPost, tableURL(), request, nil); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("ok")
}
