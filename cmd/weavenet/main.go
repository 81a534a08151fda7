package main

// weavenet node entrypoint. The `run` command is the composition root: it
// wires the account store, pools, validator registry, ledger and producer
// together and drives the timer-based housekeeping. Admin subcommands come
// from cmd/cli.

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"weavenet/cmd/cli"
	"weavenet/core"
	pkgconfig "weavenet/pkg/config"
	"weavenet/pkg/utils"
)

const restoreDeadline = 5 * time.Second

func main() {
	root := &cobra.Command{Use: "weavenet", Short: "weavenet blockchain node"}
	root.AddCommand(runCmd())
	cli.RegisterAll(root)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := pkgconfig.LoadFromEnv()
			if err != nil {
				return err
			}
			return runNode(cfg)
		},
	}
}

func runNode(cfg *pkgconfig.Config) error {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	privKey, err := loadKey(cfg.Node.KeyFile)
	if err != nil {
		return utils.Wrap(err, "load node key")
	}
	pubKey, err := core.PublicKeyFromPrivate(privKey)
	if err != nil {
		return utils.Wrap(err, "derive public key")
	}

	bus := core.NewBus()
	store := core.NewAccountStore()
	pool := core.NewValidatorPool(logger, bus,
		time.Duration(cfg.Consensus.OfflineTimeoutMS)*time.Millisecond)
	mining := core.NewMiningRegistry(logger)
	mempool := core.NewMempool(logger, bus, cfg.Mempool.MaxSize)
	msgPool := core.NewMessagePool(logger)

	ledger, err := core.NewLedger(core.LedgerConfig{
		Logger:     logger,
		Bus:        bus,
		Store:      store,
		Validators: pool,
		Slasher:    pool,
		Mining:     mining,
	})
	if err != nil {
		return utils.Wrap(err, "init ledger")
	}

	if err := pool.Register(cfg.Node.ValidatorID, cfg.Node.Wallet, pubKey); err != nil {
		return utils.Wrap(err, "register validator")
	}
	pool.SetOnline(cfg.Node.ValidatorID)

	restorePersistedChain(logger, ledger, cfg.Storage.ChainFile)

	producer := core.NewProducer(core.ProducerConfig{
		Logger:      logger,
		Bus:         bus,
		Ledger:      ledger,
		Mempool:     mempool,
		MessagePool: msgPool,
		Validators:  pool,
		Mining:      mining,
		ValidatorID: cfg.Node.ValidatorID,
		Wallet:      cfg.Node.Wallet,
		NodeID:      cfg.Node.ValidatorID,
		NodeIP:      cfg.Node.IP,
		PrivateKey:  privKey,
	})

	bus.Subscribe(core.EventTransactionAdded, func(core.Event) { producer.TryProduce() })
	bus.Subscribe(core.EventBlockAdded, func(core.Event) {
		if err := persistChain(ledger, cfg.Storage.ChainFile); err != nil {
			logger.WithError(err).Error("chain persistence failed")
			return
		}
		bus.Publish(core.Event{Kind: core.EventBackupCreated})
	})

	heartbeatMS := cfg.Consensus.HeartbeatTickMS
	if heartbeatMS <= 0 {
		heartbeatMS = int(core.BlockTimeMS)
	}
	sweepMS := cfg.Consensus.ExpirySweepTickMS
	if sweepMS <= 0 {
		sweepMS = 30_000
	}
	heartbeat := time.NewTicker(time.Duration(heartbeatMS) * time.Millisecond)
	sweep := time.NewTicker(time.Duration(sweepMS) * time.Millisecond)
	defer heartbeat.Stop()
	defer sweep.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	logger.WithFields(logrus.Fields{
		"chain_id": core.ChainID,
		"version":  core.NetworkVersion,
		"height":   ledger.Height(),
	}).Info("node started")

	for {
		select {
		case <-heartbeat.C:
			pool.Heartbeat(cfg.Node.ValidatorID, ledger.Height())
			producer.TryProduce()
		case <-sweep.C:
			pool.Sweep(time.Now().UnixMilli())
			mempool.ClearExpired(time.Now().UnixMilli())
		case <-stop:
			logger.Info("shutting down")
			producer.Stop()
			if err := persistChain(ledger, cfg.Storage.ChainFile); err != nil {
				logger.WithError(err).Error("final chain persistence failed")
			}
			return nil
		}
	}
}

// restorePersistedChain loads the persisted chain, wiping it when block 0
// does not match the embedded genesis. Restoration is bounded: past the
// deadline the node proceeds with whatever height was loaded.
func restorePersistedChain(logger *logrus.Logger, ledger *core.Ledger, path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warn("chain file unreadable, starting from genesis")
		}
		return
	}
	var blocks []*core.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		logger.WithError(err).Warn("chain file corrupt, wiping")
		_ = os.Remove(path)
		return
	}
	if len(blocks) == 0 {
		return
	}
	if err := core.VerifyGenesis(blocks[0]); err != nil {
		logger.WithField("pinned", core.PinnedGenesisHash()).
			Warn("persisted genesis mismatch, wiping data store")
		_ = os.Remove(path)
		return
	}

	done := make(chan error, 1)
	go func() { done <- ledger.RestoreChain(blocks) }()
	select {
	case err := <-done:
		if err != nil {
			logger.WithError(err).Warn("chain restore failed, continuing from genesis")
			return
		}
		logger.WithField("height", ledger.Height()).Info("chain restored from disk")
	case <-time.After(restoreDeadline):
		logger.Warn("chain restore deadline exceeded, continuing with loaded height")
	}
}

func persistChain(ledger *core.Ledger, path string) error {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(ledger.Export())
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file %s is empty", path)
	}
	return key, nil
}
