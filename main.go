package main

import "xinfadi_prices/cmd"

func main() {
	cmd.Execute()
}
