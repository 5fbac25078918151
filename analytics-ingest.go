package main

import (
	"github.com/ddworken/analytics-ingest/cmd"
)

func main() {
	cmd.Execute()
}
