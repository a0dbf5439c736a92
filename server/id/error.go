// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package id

import "github.com/TabletDB/tabletmeta/pkg/coderr"

var ErrDecodeIndex = coderr.NewCodeError(coderr.Internal, "decode index value")
