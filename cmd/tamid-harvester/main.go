package main

import (
	"context"

	"tamid-harvester/cmd/tamid-harvester/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
