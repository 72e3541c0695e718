package main

import "tradedesk/internal/cli"

func main() {
	cli.Execute()
}
