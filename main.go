package main

import "github.com/xiaot623/gogo/supportchat/cmd"

func main() {
	cmd.Execute()
}
