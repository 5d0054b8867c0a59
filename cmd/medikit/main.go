package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/avelar-dev/medikit/internal/app"
	"github.com/avelar-dev/medikit/internal/cli"
	"github.com/avelar-dev/medikit/internal/config"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 && os.Args[1][0] != '-' {
		command := os.Args[1]
		args := os.Args[2:]

		switch command {
		case "help", "--help", "-h":
			cli.PrintHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("medikit version %s\n", version)
			return
		}

		application := initApp()
		defer application.Close()

		switch command {
		case "serve":
			application.RunServer()
		case "list":
			cli.HandleListCommand(application)
		case "add":
			cli.HandleAddCommand(args, application)
		case "today":
			cli.HandleTodayCommand(application)
		case "take":
			cli.HandleDoseCommand(args, medication.StatusTaken, application)
		case "skip":
			cli.HandleDoseCommand(args, medication.StatusSkipped, application)
		case "reset":
			cli.HandleDoseCommand(args, medication.StatusPending, application)
		case "search":
			cli.HandleSearchCommand(args, application)
		case "export":
			cli.HandleExportCommand(args, application)
		case "import":
			cli.HandleImportCommand(args, application)
		case "repair":
			cli.HandleRepairCommand(application)
		default:
			fmt.Printf("Unknown command: %s\n\n", command)
			cli.PrintHelp()
			os.Exit(1)
		}
		return
	}

	flag.Parse()
	application := initApp()
	defer application.Close()
	application.RunServer()
}

func initApp() *app.App {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application, err := app.New(cfg, st, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}
	return application
}
