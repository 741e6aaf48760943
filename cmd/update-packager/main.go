package main

import "github.com/itglabs/update-packager/cmd/update-packager/cmd"

func main() {
	cmd.Execute()
}
