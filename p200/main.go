/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package main

import "github.com/indrora/pack200/p200/cmd"

func main() {
	cmd.Execute()
}
