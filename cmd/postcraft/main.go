package main

import "github.com/postcraft-hq/postcraft/cmd/postcraft/cmd"

func main() {
	cmd.Execute()
}
