package main

import "github.com/jimeng-relay/storyvideo/cmd"

func main() {
	cmd.Execute()
}
