package main

import (
	"os"

	tokenstreamcmder "github.com/papercomputeco/tokenstream/cmd/tokenstream"
)

func main() {
	cmd := tokenstreamcmder.NewTokenstreamCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
