package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/urfave/cli"

	"telepal/internal/app"
	"telepal/internal/config"
	"telepal/internal/storage"
	"telepal/internal/tools"
	logx "telepal/pkg/logx"
)

var (
	envFiles cli.StringSlice
	chatID   int64

	configFlag = cli.StringFlag{
		Name:  "config, c",
		Value: "./config.yaml",
		Usage: "path to the YAML or JSON config file",
	}
)

// configPath prefers a --config given after the subcommand.
func configPath(c *cli.Context) string {
	if c.IsSet("config") || c.Parent() == nil {
		return c.String("config")
	}
	return c.GlobalString("config")
}

func main() {
	a := cli.App{
		Name:      "telepal",
		Usage:     "Telegram reminder bot",
		UsageText: "telepal [global options] <command> [arguments...]",
		Flags: []cli.Flag{
			configFlag,
			cli.StringSliceFlag{
				Name:  "env",
				Usage: "dotenv file(s) loaded before the config (default: .env)",
				Value: &envFiles,
			},
		},
		Before: func(*cli.Context) error {
			return config.LoadDotEnv(envFiles...)
		},
		Action: run,
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "start the bot (default)",
				Action: run,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "migrate",
				Usage:  "apply the storage schema and exit",
				Action: migrate,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "list reminders of one chat",
				UsageText: "telepal list --chat <chat_id>",
				Action:    list,
				Flags: []cli.Flag{
					configFlag,
					cli.Int64Flag{
						Name:        "chat",
						Usage:       "chat id",
						Destination: &chatID,
					},
				},
			},
			{
				Name:      "cancel",
				Usage:     "delete a pending reminder",
				UsageText: "telepal cancel <id>",
				Action:    cancel,
				Flags:     []cli.Flag{configFlag},
			},
		},
	}
	if err := a.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := app.New(ctx, configPath(c))
	if err != nil {
		return err
	}
	if err := bot.Start(ctx); err != nil {
		_ = bot.Stop(context.Background())
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-bot.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = bot.Stop(sctx)
	return bot.Err()
}

// openStore loads the config without requiring a bot token.
func openStore(ctx context.Context, path string) (storage.Store, *config.Config, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg, false); err != nil {
		return nil, nil, err
	}
	sc, err := cfg.StorageConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(ctx, sc, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func migrate(c *cli.Context) error {
	ctx := context.Background()
	st, _, err := openStore(ctx, configPath(c))
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Println("schema up to date")
	return nil
}

func list(c *cli.Context) error {
	if chatID == 0 {
		return fmt.Errorf("list: --chat is required")
	}
	ctx := context.Background()
	st, cfg, err := openStore(ctx, configPath(c))
	if err != nil {
		return err
	}
	defer st.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	tasks, err := st.GetByChat(ctx, chatID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no reminders")
		return nil
	}
	fmt.Println(tools.FormatTasks(tasks, loc))
	return nil
}

func cancel(c *cli.Context) error {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("cancel: expected a reminder id")
	}
	ctx := context.Background()
	st, _, err := openStore(ctx, configPath(c))
	if err != nil {
		return err
	}
	defer st.Close()

	ok, err := st.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reminder %d not found or already delivered", id)
	}
	// A running bot drops the orphan timer when it fires.
	fmt.Printf("cancelled reminder %d\n", id)
	return nil
}
