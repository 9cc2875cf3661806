package main

import "stock_monitor/cmd"

func main() {
	cmd.Execute()
}
