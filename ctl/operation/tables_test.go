// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package operation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePartitions(t *testing.T) {
	r := require.New(t)

	partitions, err := ParsePartitions("0:10.0.0.1:9090:leader,0:10.0.0.2:9090:follower,1:10.0.0.2:9090:leader")
	r.NoError(err)
	r.Equal([]TablePartition{
		{PID: 0, Endpoint: "10.0.0.1:9090", IsLeader: true},
		{PID: 0, Endpoint: "10.0.0.2:9090", IsLeader: false},
		{PID: 1, Endpoint: "10.0.0.2:9090", IsLeader: true},
	}, partitions)

	_, err = ParsePartitions("0:10.0.0.1:9090")
	r.Error(err)

	_, err = ParsePartitions("x:10.0.0.1:9090:leader")
	r.Error(err)

	_, err = ParsePartitions("0:10.0.0.1:9090:primary")
	r.Error(err)
}
