// Command feedmail delivers RSS and Atom feed entries into mailbox folders.
package main

import "github.com/bryan-buckman/feedmail/internal/cli"

func main() {
	cli.Execute()
}
