package main

import "github.com/velum-sync/velum/cmd/velum/cmd"

func main() {
	cmd.Execute()
}
