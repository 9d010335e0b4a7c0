// cmd/notify-cli/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"notification-dispatch/internal/app"
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification/deliverylog"
	"notification-dispatch/internal/notification/template"
)

type globalFlags struct {
	configPath string
	templates  string
	logLevel   string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "Path to config file (defaults to configs/config.yaml)")
	fs.StringVar(&g.templates, "templates", "", "JSON file of templates; skips Postgres and logs in memory")
	fs.StringVar(&g.logLevel, "log-level", "warn", "Log level")
}

func main() {
	var g globalFlags

	sendCmd := flag.NewFlagSet("send", flag.ExitOnError)
	batchCmd := flag.NewFlagSet("batch", flag.ExitOnError)
	resendCmd := flag.NewFlagSet("resend", flag.ExitOnError)
	for _, fs := range []*flag.FlagSet{sendCmd, batchCmd, resendCmd} {
		g.register(fs)
	}

	// Send command flags
	to := sendCmd.String("to", "", "Recipient email")
	tpl := sendCmd.String("template", "", "Template family name")
	notifType := sendCmd.String("type", "", "Notification type (derives the template when -template is empty)")
	lang := sendCmd.String("lang", "", "Language (ar, en); empty uses the recipient's preference")
	sendVars := sendCmd.String("vars", "", "Variables as a JSON object, or @file")

	// Batch command flags
	file := batchCmd.String("file", "", "JSON lines file of notification requests")
	concurrency := batchCmd.Int("concurrency", 0, "Max in-flight sends (defaults to notifications.batch_concurrency)")

	// Resend command flags
	logID := resendCmd.String("id", "", "Delivery log entry ID")
	resendVars := resendCmd.String("vars", "", "Variables as a JSON object, or @file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "send":
		sendCmd.Parse(os.Args[2:])
		if *to == "" || (*tpl == "" && *notifType == "") {
			fmt.Println("Error: to and one of template or type are required for send.")
			sendCmd.Usage()
			os.Exit(1)
		}
		vars, err := parseVars(*sendVars)
		exitOn(err)

		rt := mustRuntime(ctx, g)
		defer rt.Close()
		req := models.NotificationRequest{
			TemplateName:     *tpl,
			RecipientEmail:   *to,
			Language:         *lang,
			NotificationType: *notifType,
			Variables:        vars,
		}
		if !runSend(ctx, rt.Dispatcher, req, os.Stdout) {
			rt.Close()
			os.Exit(2)
		}

	case "batch":
		batchCmd.Parse(os.Args[2:])
		if *file == "" {
			fmt.Println("Error: file is required for batch.")
			batchCmd.Usage()
			os.Exit(1)
		}
		f, err := os.Open(*file)
		exitOn(err)
		reqs, err := readBatch(f)
		f.Close()
		exitOn(err)

		rt := mustRuntime(ctx, g)
		defer rt.Close()
		if failed := runBatch(ctx, rt.Dispatcher, reqs, *concurrency, os.Stdout); failed > 0 {
			rt.Close()
			os.Exit(2)
		}

	case "resend":
		resendCmd.Parse(os.Args[2:])
		if *logID == "" {
			fmt.Println("Error: id is required for resend.")
			resendCmd.Usage()
			os.Exit(1)
		}
		vars, err := parseVars(*resendVars)
		exitOn(err)

		rt := mustRuntime(ctx, g)
		defer rt.Close()
		ok, err := runResend(ctx, rt.Dispatcher, rt.History, *logID, vars, os.Stdout)
		exitOn(err)
		if !ok {
			rt.Close()
			os.Exit(2)
		}

	case "help", "-h", "--help":
		help()

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		help()
		os.Exit(1)
	}
}

func mustRuntime(ctx context.Context, g globalFlags) *app.Runtime {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFromFile(g.configPath)
	} else {
		cfg, err = config.Load()
	}
	exitOn(err)

	log := logger.NewStructured(g.logLevel, "console", "stderr")

	var ov app.Overrides
	if g.templates != "" {
		rows, err := loadTemplates(g.templates)
		exitOn(err)
		ov.Templates = template.NewMemoryStore(rows...)
		ov.Recorder = deliverylog.NewMemoryRecorder()
	}

	rt, err := app.Build(ctx, cfg, log, ov)
	exitOn(err)
	return rt
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func help() {
	fmt.Println("Usage: notify-cli <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  send    -to <email> -template <name> [-type <type>] [-lang ar|en] [-vars <json|@file>]")
	fmt.Println("  batch   -file <requests.jsonl> [-concurrency <n>]")
	fmt.Println("  resend  -id <deliveryLogId> [-vars <json|@file>]")
	fmt.Println("Common options: -config <path> -templates <file.json> -log-level <level>")
}
