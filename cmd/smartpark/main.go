package main

import "github.com/srikanta2006/smart-parking/cmd"

func main() {
	cmd.Execute()
}
