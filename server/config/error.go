// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package config

import "github.com/TabletDB/tabletmeta/pkg/coderr"

var (
	ErrInvalidCommandArgs = coderr.NewCodeError(coderr.InvalidParams, "invalid command arguments")
	ErrHelpRequested      = coderr.NewCodeError(coderr.PrintHelpUsage, "help requested")
	ErrRetrieveHostname   = coderr.NewCodeError(coderr.Internal, "retrieve local hostname")
	ErrLoadConfigFile     = coderr.NewCodeError(coderr.InvalidParams, "load config file")
	ErrParseConfigEnv     = coderr.NewCodeError(coderr.InvalidParams, "parse config from environment")
	ErrInvalidConfig      = coderr.NewCodeError(coderr.InvalidParams, "invalid config")
)
