package main

import "github.com/ValentinKolb/wirepeer/cmd"

func main() {
	cmd.Execute()
}
