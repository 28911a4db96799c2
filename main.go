package main

import "github.com/isir-tracker/isir-backend/cmd"

func main() {
	cmd.Execute()
}
