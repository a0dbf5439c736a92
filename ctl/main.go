// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package main

import "github.com/TabletDB/tabletmeta/ctl/cmd"

func main() {
	cmd.Execute()
}
