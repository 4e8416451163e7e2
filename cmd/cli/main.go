package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	beaconsdk "github.com/beaconwallet/go-sdk"
	"github.com/beaconwallet/go-sdk/proximity"
	"github.com/beaconwallet/go-sdk/proximity/wsradio"
	"github.com/beaconwallet/go-sdk/store"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	DatadirEnvVar = "BEACON_WALLET_DATADIR"
)

var (
	Version      string
	walletClient beaconsdk.WalletClient
)

// envSettings are process-level defaults, overridable per flag.
type envSettings struct {
	Datadir     string `envconfig:"DATADIR"`
	ExplorerURL string `envconfig:"EXPLORER_URL" default:"http://localhost:3000"`
	ChainID     string `envconfig:"CHAIN_ID" default:"chain_1"`
	RadioHub    string `envconfig:"RADIO_HUB"`
}

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "Beacon CLI"
	app.Usage = "beacon wallet command line interface"
	app.Commands = append(
		app.Commands,
		&initCommand,
		&importCommand,
		&confirmBackupCommand,
		&unlockCommand,
		&lockCommand,
		&changePasswordCommand,
		&dumpCommand,
		&receiveCommand,
		&balanceCommand,
		&sendCommand,
		&requestCommand,
		&verifyCommand,
		&queueCommand,
		&cancelCommand,
		&drainCommand,
		&scanCommand,
		&historyCommand,
		&destroyCommand,
	)
	app.Flags = []cli.Flag{datadirFlag}
	app.Before = func(ctx *cli.Context) error {
		client, err := getWalletClient(ctx)
		if err != nil {
			return fmt.Errorf("error initializing wallet client: %v", err)
		}
		walletClient = client
		return nil
	}
	app.After = func(_ *cli.Context) error {
		if walletClient != nil {
			walletClient.Stop()
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

var (
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Specify the data directory",
		EnvVars: []string{DatadirEnvVar},
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "password to unlock the wallet",
	}
	mnemonicFlag = &cli.StringFlag{
		Name:  "mnemonic",
		Usage: "mnemonic phrase to import",
	}
	privateKeyFlag = &cli.StringFlag{
		Name:  "prvkey",
		Usage: "raw private key to import",
	}
	toFlag = &cli.StringFlag{
		Name:  "to",
		Usage: "recipient address",
	}
	amountFlag = &cli.Uint64Flag{
		Name:  "amount",
		Usage: "amount to send in base units",
	}
	chainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "chain id, defaults to the selected chain",
	}
	referenceFlag = &cli.StringFlag{
		Name:  "reference",
		Usage: "opaque payment reference",
	}
	payloadFlag = &cli.StringFlag{
		Name:  "payload",
		Usage: "JSON encoded payment payload to verify",
	}
	qrFlag = &cli.StringFlag{
		Name:  "qr",
		Usage: "write the payment QR code PNG to the given path",
	}
	idFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "pending transaction id",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "scan timeout",
		Value: 30 * time.Second,
	}
	targetFlag = &cli.StringFlag{
		Name:  "target",
		Usage: "only report peers advertising this wallet address",
	}
)

var (
	initCommand = cli.Command{
		Name:   "init",
		Usage:  "create a new wallet and print the mnemonic once",
		Flags:  []cli.Flag{passwordFlag},
		Action: initAction,
	}
	importCommand = cli.Command{
		Name:   "import",
		Usage:  "restore a wallet from a mnemonic or a raw private key",
		Flags:  []cli.Flag{passwordFlag, mnemonicFlag, privateKeyFlag},
		Action: importAction,
	}
	confirmBackupCommand = cli.Command{
		Name:   "confirm-backup",
		Usage:  "confirm the mnemonic is backed up, activating the wallet",
		Action: confirmBackupAction,
	}
	unlockCommand = cli.Command{
		Name:   "unlock",
		Usage:  "unlock the wallet",
		Flags:  []cli.Flag{passwordFlag},
		Action: unlockAction,
	}
	lockCommand = cli.Command{
		Name:   "lock",
		Usage:  "lock the wallet",
		Action: lockAction,
	}
	changePasswordCommand = cli.Command{
		Name:   "change-password",
		Usage:  "re-encrypt the wallet under a new password",
		Action: changePasswordAction,
	}
	dumpCommand = cli.Command{
		Name:   "dump",
		Usage:  "print the mnemonic, requires the password",
		Flags:  []cli.Flag{passwordFlag},
		Action: dumpAction,
	}
	receiveCommand = cli.Command{
		Name:   "receive",
		Usage:  "print the wallet address for a chain",
		Flags:  []cli.Flag{chainFlag},
		Action: receiveAction,
	}
	balanceCommand = cli.Command{
		Name:   "balance",
		Usage:  "print the confirmed balance for a chain",
		Flags:  []cli.Flag{chainFlag},
		Action: balanceAction,
	}
	sendCommand = cli.Command{
		Name:   "send",
		Usage:  "send a payment, queueing it when offline",
		Flags:  []cli.Flag{passwordFlag, toFlag, amountFlag, chainFlag},
		Action: sendAction,
	}
	requestCommand = cli.Command{
		Name:   "request",
		Usage:  "sign a payment payload and optionally render it as a QR code",
		Flags:  []cli.Flag{passwordFlag, toFlag, amountFlag, chainFlag, referenceFlag, qrFlag},
		Action: requestAction,
	}
	verifyCommand = cli.Command{
		Name:   "verify",
		Usage:  "verify a received payment payload",
		Flags:  []cli.Flag{payloadFlag},
		Action: verifyAction,
	}
	queueCommand = cli.Command{
		Name:   "queue",
		Usage:  "list pending queued payments",
		Action: queueAction,
	}
	cancelCommand = cli.Command{
		Name:   "cancel",
		Usage:  "cancel a queued payment",
		Flags:  []cli.Flag{idFlag},
		Action: cancelAction,
	}
	drainCommand = cli.Command{
		Name:   "drain",
		Usage:  "submit all eligible queued payments",
		Flags:  []cli.Flag{passwordFlag},
		Action: drainAction,
	}
	scanCommand = cli.Command{
		Name:   "scan",
		Usage:  "discover nearby payment peers",
		Flags:  []cli.Flag{timeoutFlag, targetFlag},
		Action: scanAction,
	}
	historyCommand = cli.Command{
		Name:   "history",
		Usage:  "print the transaction history for a chain",
		Flags:  []cli.Flag{chainFlag},
		Action: historyAction,
	}
	destroyCommand = cli.Command{
		Name:   "destroy",
		Usage:  "erase the wallet and cancel queued payments",
		Action: destroyAction,
	}
)

func initAction(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	settings := loadSettings()
	mnemonic, err := walletClient.Init(context.Background(), beaconsdk.InitArgs{
		Password:        string(password),
		Chains:          defaultChains(settings),
		SelectedChainID: settings.ChainID,
	})
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"mnemonic": mnemonic,
		"notice":   "write this phrase down, it is shown exactly once",
	})
}

func importAction(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}

	settings := loadSettings()
	if err := walletClient.Import(context.Background(), beaconsdk.ImportArgs{
		InitArgs: beaconsdk.InitArgs{
			Password:        string(password),
			Chains:          defaultChains(settings),
			SelectedChainID: settings.ChainID,
		},
		Mnemonic:   ctx.String(mnemonicFlag.Name),
		PrivateKey: ctx.String(privateKeyFlag.Name),
	}); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "imported"})
}

func confirmBackupAction(_ *cli.Context) error {
	if err := walletClient.ConfirmBackup(context.Background()); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "backup confirmed"})
}

func unlockAction(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	if err := walletClient.Unlock(context.Background(), string(password)); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "unlocked"})
}

func lockAction(_ *cli.Context) error {
	if err := walletClient.Lock(context.Background()); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "locked"})
}

func changePasswordAction(_ *cli.Context) error {
	fmt.Print("current password: ")
	oldPassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Print("new password: ")
	newPassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}

	if err := walletClient.ChangePassword(
		context.Background(), string(oldPassword), string(newPassword),
	); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "password changed"})
}

func dumpAction(ctx *cli.Context) error {
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	mnemonic, err := walletClient.ExportMnemonic(context.Background(), string(password))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"mnemonic": mnemonic})
}

func receiveAction(ctx *cli.Context) error {
	chainID, err := resolveChain(ctx)
	if err != nil {
		return err
	}
	addr, err := walletClient.Receive(context.Background(), chainID)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"chain": chainID, "address": addr})
}

func balanceAction(ctx *cli.Context) error {
	chainID, err := resolveChain(ctx)
	if err != nil {
		return err
	}
	balance, err := walletClient.Balance(context.Background(), chainID)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"chain": chainID, "balance": balance})
}

func sendAction(ctx *cli.Context) error {
	chainID, err := resolveChain(ctx)
	if err != nil {
		return err
	}
	if err := ensureUnlocked(ctx); err != nil {
		return err
	}

	result, err := walletClient.SendPayment(context.Background(), types.PaymentRequest{
		To:      ctx.String(toFlag.Name),
		Amount:  ctx.Uint64(amountFlag.Name),
		ChainID: chainID,
	})
	if err != nil {
		return err
	}

	if result.Submitted {
		return printJSON(map[string]string{"status": "submitted", "txHash": result.TxHash})
	}
	return printJSON(map[string]string{"status": "queued", "id": result.Queued.ID})
}

func requestAction(ctx *cli.Context) error {
	chainID, err := resolveChain(ctx)
	if err != nil {
		return err
	}
	if err := ensureUnlocked(ctx); err != nil {
		return err
	}

	signed, err := walletClient.SignPayment(context.Background(), types.PaymentRequest{
		To:      ctx.String(toFlag.Name),
		Amount:  ctx.Uint64(amountFlag.Name),
		ChainID: chainID,
	}, ctx.String(referenceFlag.Name))
	if err != nil {
		return err
	}

	if path := ctx.String(qrFlag.Name); path != "" {
		png, err := walletClient.PaymentQR(context.Background(), signed)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Clean(path), png, 0600); err != nil {
			return err
		}
	}
	return printJSON(signed)
}

func verifyAction(ctx *cli.Context) error {
	raw := []byte(ctx.String(payloadFlag.Name))
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}

	result, request, err := walletClient.VerifyPayment(context.Background(), raw)
	if err != nil {
		return err
	}
	if request != nil {
		return printJSON(map[string]interface{}{
			"verified": false,
			"unsigned": true,
			"request":  request,
		})
	}

	out := map[string]interface{}{
		"verified": result.IsValid,
		"signer":   result.Signer,
		"chain":    result.ChainID,
	}
	if result.Warning != nil {
		out["warning"] = result.Warning.String()
	}
	if result.Err != nil {
		out["error"] = result.Err.Error()
	}
	return printJSON(out)
}

func queueAction(_ *cli.Context) error {
	pending, err := walletClient.ListPendingTransactions(context.Background())
	if err != nil {
		return err
	}
	return printJSON(pending)
}

func cancelAction(ctx *cli.Context) error {
	id := ctx.String(idFlag.Name)
	if id == "" {
		return fmt.Errorf("missing pending transaction id")
	}
	if err := walletClient.CancelPendingTransaction(context.Background(), id); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "cancelled", "id": id})
}

func drainAction(ctx *cli.Context) error {
	if err := ensureUnlocked(ctx); err != nil {
		return err
	}
	if err := walletClient.DrainQueue(context.Background()); err != nil {
		return err
	}
	pending, err := walletClient.ListPendingTransactions(context.Background())
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"status": "drained", "stillPending": len(pending)})
}

func scanAction(ctx *cli.Context) error {
	scanCtx, cancel := context.WithTimeout(
		context.Background(), ctx.Duration(timeoutFlag.Name),
	)
	defer cancel()

	opts := []proximity.ScanOption{}
	if target := ctx.String(targetFlag.Name); target != "" {
		opts = append(opts, proximity.WithTargetAddress(target))
	}
	session, err := walletClient.StartProximityScan(scanCtx, opts...)
	if err != nil {
		return err
	}
	defer walletClient.StopProximityScan()

	<-session.Done()
	return printJSON(session.Peers())
}

func historyAction(ctx *cli.Context) error {
	chainID, err := resolveChain(ctx)
	if err != nil {
		return err
	}
	records, err := walletClient.GetTransactionHistory(context.Background(), chainID)
	if err != nil {
		return err
	}
	return printJSON(records)
}

func destroyAction(_ *cli.Context) error {
	if err := walletClient.Destroy(context.Background()); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "destroyed"})
}

func getWalletClient(ctx *cli.Context) (beaconsdk.WalletClient, error) {
	settings := loadSettings()
	dataDir := ctx.String(datadirFlag.Name)
	if dataDir == "" {
		dataDir = settings.Datadir
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataDir = filepath.Join(home, ".beacon-cli")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	sdkRepository, err := store.NewStore(store.Config{
		ConfigStoreType:  types.KVStore,
		AppDataStoreType: types.KVStore,
		BaseDir:          dataDir,
	})
	if err != nil {
		return nil, err
	}

	opts := []beaconsdk.ClientOption{}
	if settings.RadioHub != "" {
		deviceID, err := os.Hostname()
		if err != nil {
			deviceID = "beacon-cli"
		}
		opts = append(opts, beaconsdk.WithRadio(wsradio.NewRadio(settings.RadioHub, deviceID)))
	}

	cfgData, err := sdkRepository.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return beaconsdk.NewWalletClient(sdkRepository, opts...)
	}
	return beaconsdk.LoadWalletClient(sdkRepository, opts...)
}

func loadSettings() envSettings {
	var settings envSettings
	// nolint
	envconfig.Process("BEACON_WALLET", &settings)
	return settings
}

func defaultChains(settings envSettings) []types.Chain {
	return []types.Chain{
		{
			ID:          settings.ChainID,
			Kind:        types.ChainKindEVM,
			ExplorerURL: settings.ExplorerURL,
		},
	}
}

func resolveChain(ctx *cli.Context) (string, error) {
	if chainID := ctx.String(chainFlag.Name); chainID != "" {
		return chainID, nil
	}
	cfg, err := walletClient.GetConfigData(context.Background())
	if err != nil {
		return "", err
	}
	return cfg.SelectedChainID, nil
}

func ensureUnlocked(ctx *cli.Context) error {
	if !walletClient.IsLocked(context.Background()) {
		return nil
	}
	password, err := readPassword(ctx)
	if err != nil {
		return err
	}
	return walletClient.Unlock(context.Background(), string(password))
}

func readPassword(ctx *cli.Context) ([]byte, error) {
	password := []byte(ctx.String("password"))
	if len(password) == 0 {
		fmt.Print("unlock your wallet with password: ")
		var err error
		password, err = term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return nil, err
		}
	}
	return password, nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
