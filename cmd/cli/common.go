package cli

// common.go – shared middleware for the weavenet admin CLI. Each command
// file registers its own subtree via RegisterX(root); this file owns the
// lazily-initialised engine instances they all share.

import (
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"weavenet/core"
	"weavenet/pkg/utils"
)

var (
	cliOnce    sync.Once
	cliLogger  *logrus.Logger
	cliBus     *core.Bus
	cliStore   *core.AccountStore
	cliPool    *core.ValidatorPool
	cliMining  *core.MiningRegistry
	cliLedger  *core.Ledger
	cliMempool *core.Mempool
	cliErr     error
)

// initMiddleware loads .env, configures logging and builds the in-process
// engine the inspection commands operate on.
func initMiddleware(cmd *cobra.Command, _ []string) error {
	cliOnce.Do(func() {
		_ = godotenv.Load()

		cliLogger = logrus.New()
		lvl, err := logrus.ParseLevel(utils.EnvOrDefault("LOG_LEVEL", "info"))
		if err != nil {
			cliErr = err
			return
		}
		cliLogger.SetLevel(lvl)
		cliLogger.SetOutput(os.Stderr)

		cliBus = core.NewBus()
		cliStore = core.NewAccountStore()
		cliPool = core.NewValidatorPool(cliLogger, cliBus, time.Duration(utils.EnvOrDefaultInt("OFFLINE_TIMEOUT_MS", 60000))*time.Millisecond)
		cliMining = core.NewMiningRegistry(cliLogger)
		cliMempool = core.NewMempool(cliLogger, cliBus, utils.EnvOrDefaultInt("MEMPOOL_MAX", 0))

		cliLedger, cliErr = core.NewLedger(core.LedgerConfig{
			Logger:     cliLogger,
			Bus:        cliBus,
			Store:      cliStore,
			Validators: cliPool,
			Slasher:    cliPool,
			Mining:     cliMining,
		})
	})
	return cliErr
}

// RegisterAll attaches every CLI subtree to the given root command.
func RegisterAll(root *cobra.Command) {
	RegisterChain(root)
	RegisterValidator(root)
	RegisterMempool(root)
	RegisterKeys(root)
}
