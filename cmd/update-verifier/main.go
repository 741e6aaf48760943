package main

import "github.com/itglabs/update-packager/cmd/update-verifier/cmd"

func main() {
	cmd.Execute()
}
