// Command voxchat is a multi-modal chat client for the voxchat backend.
package main

import "github.com/diogo/voxchat/internal/commands"

func main() {
	commands.Execute()
}
