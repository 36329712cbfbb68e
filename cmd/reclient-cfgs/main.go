package main

import "github.com/oshokin/reclient-cfgs/cmd/reclient-cfgs/cmd"

func main() {
	cmd.Execute()
}
