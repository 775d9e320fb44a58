package main

import (
	"context"
	"os"

	_ "s5-keeper/cmd"
	"s5-keeper/cmd/root"
	"s5-keeper/internal/config"
	"s5-keeper/internal/console"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/services"
)

func main() {
	if err := root.RootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error(err)
		console.Fail("ERROR: %v", err)
		switch errs.ExitCode(err) {
		case errs.ExitServiceStartFailed, errs.ExitUpgradeFailed, errs.ExitSupervisorAction:
			console.Warn("inspect the service log with: %s", services.JournalHint(config.Get().Service.Name))
		}
		os.Exit(errs.ExitCode(err))
	}
	os.Exit(errs.ExitOK)
}
