package main

import "github.com/mager/cochlea/cmd/cochleactl/cmd"

func main() {
	cmd.Execute()
}
