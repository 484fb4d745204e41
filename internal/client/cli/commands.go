package cli

import (
	"context"
	"fmt"
)

// Run выполняет команду и возвращает ошибку для кода выхода
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "add":
		return c.runAdd(ctx, args)
	case "list":
		return c.runList(ctx, args)
	case "get":
		return c.runGet(ctx, args)
	case "delete":
		return c.runDelete(ctx, args)
	case "sync":
		return c.runSync(ctx)
	case "watch":
		return c.runWatch(ctx)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}
