package main

import "github.com/frahmantamala/orgtree/cmd"

func main() {
	cmd.Execute()
}
