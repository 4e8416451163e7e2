package beaconsdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beaconwallet/go-sdk/explorer"
	"github.com/beaconwallet/go-sdk/internal/utils"
	"github.com/beaconwallet/go-sdk/keyring"
	"github.com/beaconwallet/go-sdk/monitor"
	"github.com/beaconwallet/go-sdk/payload"
	"github.com/beaconwallet/go-sdk/proximity"
	"github.com/beaconwallet/go-sdk/queue"
	"github.com/beaconwallet/go-sdk/types"
	"github.com/beaconwallet/go-sdk/vault"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPaymentTTL      = 24 * time.Hour
	defaultMonitorInterval = 30 * time.Second
	defaultScanTimeout     = 30 * time.Second
)

type beaconClient struct {
	store       types.Store
	explorerSvc explorer.Client
	radio       proximity.Radio

	vaultSvc *vault.Vault
	proxMgr  *proximity.Manager
	queueSvc *queue.Service

	verifierOpts []payload.VerifierOption
	retryPolicy  utils.RetryPolicy

	mu         sync.Mutex
	cfg        *types.Config
	keys       *keyring.Keyring
	verifier   *payload.Verifier
	monitorSvc *monitor.Monitor
	cred       *keyring.Credential // nil while locked
	online     bool

	warnings *utils.Broadcaster[types.SecurityWarning]
	stopOnce sync.Once
}

// NewWalletClient builds a client over an empty store, ready for Init or
// Import. It fails if the store already carries a configuration.
func NewWalletClient(sdkStore types.Store, opts ...ClientOption) (WalletClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}
	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData != nil {
		return nil, ErrAlreadyInitialized
	}
	return newClient(sdkStore, nil, opts...)
}

// LoadWalletClient restores a client from a previously initialized store.
func LoadWalletClient(sdkStore types.Store, opts ...ClientOption) (WalletClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}
	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return nil, fmt.Errorf("wallet is not initialized")
	}
	return newClient(sdkStore, cfgData, opts...)
}

func newClient(
	sdkStore types.Store, cfgData *types.Config, opts ...ClientOption,
) (WalletClient, error) {
	client := &beaconClient{
		store:       sdkStore,
		explorerSvc: explorer.NewRestClient(),
		vaultSvc:    vault.NewVault(sdkStore.WalletStore()),
		retryPolicy: utils.DefaultRetryPolicy,
		warnings:    utils.NewBroadcaster[types.SecurityWarning](),
		online:      true,
	}
	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	if client.radio != nil {
		client.proxMgr = proximity.NewManager(client.radio)
	}
	client.queueSvc = queue.NewService(
		sdkStore.PendingTxStore(), client,
		queue.WithRetryPolicy(client.retryPolicy),
	)
	go client.forwardWarnings(client.queueSvc.Warnings())

	if cfgData != nil {
		client.applyConfig(cfgData)
	}
	return client, nil
}

func (c *beaconClient) GetVersion() string {
	return Version
}

func (c *beaconClient) GetConfigData(ctx context.Context) (*types.Config, error) {
	cfgData, err := c.store.ConfigStore().GetData(ctx)
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return nil, fmt.Errorf("wallet is not initialized")
	}
	return cfgData, nil
}

func (c *beaconClient) WalletState(ctx context.Context) types.WalletState {
	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil || record == nil || record.IsZero() {
		return types.NoWallet
	}
	if !record.BackupConfirmed {
		return types.PendingBackup
	}
	if c.IsLocked(ctx) {
		return types.Locked
	}
	return types.Active
}

func (c *beaconClient) Init(ctx context.Context, args InitArgs) (string, error) {
	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil {
		return "", err
	}
	if record != nil {
		return "", ErrAlreadyInitialized
	}

	cfg, err := buildConfig(args)
	if err != nil {
		return "", err
	}

	mnemonic, err := keyring.GenerateMnemonic()
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	cred, err := keyring.ImportFromMnemonic(mnemonic)
	if err != nil {
		return "", err
	}

	if err := c.initWallet(ctx, cfg, cred, args.Password, false); err != nil {
		return "", err
	}
	return mnemonic, nil
}

func (c *beaconClient) Import(ctx context.Context, args ImportArgs) error {
	cfg, err := buildConfig(args.InitArgs)
	if err != nil {
		return err
	}

	var cred keyring.Credential
	switch {
	case args.Mnemonic != "" && args.PrivateKey != "":
		return fmt.Errorf("provide either a mnemonic or a private key, not both")
	case args.Mnemonic != "":
		cred, err = keyring.ImportFromMnemonic(args.Mnemonic)
	case args.PrivateKey != "":
		cred, err = keyring.ImportFromPrivateKey(args.PrivateKey)
	default:
		return fmt.Errorf("missing credential to import")
	}
	if err != nil {
		return err
	}

	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil {
		return err
	}
	if record != nil {
		// a different stored wallet must be destroyed explicitly first
		keys := keyring.New(cfg.Chains)
		selected, _ := cfg.Chain(cfg.SelectedChainID)
		candidate, err := keys.DeriveAddress(cred, selected)
		if err != nil {
			return err
		}
		stored := record.Addresses[selected.ID]
		if !strings.EqualFold(stored, candidate) {
			return WalletConflictError{
				StoredAddress:    stored,
				CandidateAddress: candidate,
				ChainID:          selected.ID,
			}
		}
		return ErrAlreadyInitialized
	}

	return c.initWallet(ctx, cfg, cred, args.Password, true)
}

func (c *beaconClient) initWallet(
	ctx context.Context, cfg *types.Config, cred keyring.Credential,
	password string, imported bool,
) error {
	keys := keyring.New(cfg.Chains)
	addresses, err := keys.DeriveAddresses(cred)
	if err != nil {
		return fmt.Errorf("failed to derive addresses: %w", err)
	}

	record, err := c.vaultSvc.Create(ctx, password, cred.Encode(), imported)
	if err != nil {
		return err
	}
	record.Addresses = addresses
	if err := c.store.WalletStore().UpdateWallet(ctx, record); err != nil {
		return fmt.Errorf("failed to store addresses: %w", err)
	}

	if err := c.store.ConfigStore().AddData(ctx, *cfg); err != nil {
		return fmt.Errorf("failed to store configuration: %w", err)
	}

	c.mu.Lock()
	c.cred = &cred
	c.mu.Unlock()
	c.applyConfig(cfg)
	return nil
}

func (c *beaconClient) ConfirmBackup(ctx context.Context) error {
	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNoWallet
	}
	if record.BackupConfirmed {
		return nil
	}
	record.BackupConfirmed = true
	return c.store.WalletStore().UpdateWallet(ctx, *record)
}

func (c *beaconClient) IsLocked(_ context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred == nil
}

func (c *beaconClient) Unlock(ctx context.Context, password string) error {
	secret, err := c.vaultSvc.Unlock(ctx, password)
	if err != nil {
		if errors.Is(err, vault.ErrNoVault) {
			return ErrNoWallet
		}
		return err
	}
	defer secret.Zero()

	cred, err := keyring.DecodeCredential(secret.Bytes())
	if err != nil {
		return CorruptedVaultError{Cause: err}
	}

	c.mu.Lock()
	c.cred = &cred
	c.mu.Unlock()
	return nil
}

func (c *beaconClient) Lock(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeCredential()
	return nil
}

func (c *beaconClient) ChangePassword(
	ctx context.Context, oldPassword, newPassword string,
) error {
	if err := c.vaultSvc.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		if errors.Is(err, vault.ErrNoVault) {
			return ErrNoWallet
		}
		return err
	}
	return nil
}

func (c *beaconClient) ExportMnemonic(ctx context.Context, password string) (string, error) {
	cred, err := c.freshCredential(ctx, password)
	if err != nil {
		return "", err
	}
	if cred.Kind != keyring.CredentialMnemonic {
		return "", fmt.Errorf("wallet was imported from a raw key, no mnemonic to export")
	}
	return cred.Mnemonic, nil
}

func (c *beaconClient) ExportPrivateKey(ctx context.Context, password string) (string, error) {
	cred, err := c.freshCredential(ctx, password)
	if err != nil {
		return "", err
	}

	cfg, err := c.GetConfigData(ctx)
	if err != nil {
		return "", err
	}
	chain, ok := cfg.Chain(cfg.SelectedChainID)
	if !ok {
		return "", fmt.Errorf("unknown chain %s", cfg.SelectedChainID)
	}

	keys := keyring.New(cfg.Chains)
	key, err := keys.SigningKey(cred, chain)
	if err != nil {
		return "", err
	}
	defer key.D.SetInt64(0)
	return fmt.Sprintf("%x", key.D.Bytes()), nil
}

func (c *beaconClient) ValidateConsistency(
	ctx context.Context, password string,
) (keyring.ConsistencyResult, error) {
	cred, err := c.freshCredential(ctx, password)
	if err != nil {
		return keyring.ConsistencyResult{}, err
	}
	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil {
		return keyring.ConsistencyResult{}, err
	}
	if record == nil {
		return keyring.ConsistencyResult{}, ErrNoWallet
	}
	cfg, err := c.GetConfigData(ctx)
	if err != nil {
		return keyring.ConsistencyResult{}, err
	}
	return c.keyringSvc(cfg).ValidateConsistency(cred, *record)
}

func (c *beaconClient) Destroy(ctx context.Context) error {
	if err := c.queueSvc.CancelAll(ctx); err != nil {
		return fmt.Errorf("failed to cancel queued payments: %w", err)
	}
	if err := c.vaultSvc.Destroy(ctx); err != nil {
		return err
	}
	if err := c.store.HistoryStore().Clean(ctx); err != nil {
		log.Warnf("failed to clean history on destroy: %s", err)
	}
	if err := c.store.ConfigStore().CleanData(ctx); err != nil {
		log.Warnf("failed to clean config on destroy: %s", err)
	}

	c.StopConflictMonitor()
	c.mu.Lock()
	c.wipeCredential()
	c.cfg, c.keys, c.verifier = nil, nil, nil
	c.mu.Unlock()
	return nil
}

func (c *beaconClient) Receive(ctx context.Context, chainID string) (string, error) {
	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", ErrNoWallet
	}
	addr, ok := record.Addresses[chainID]
	if !ok {
		return "", fmt.Errorf("no address for chain %s", chainID)
	}
	return addr, nil
}

func (c *beaconClient) Balance(ctx context.Context, chainID string) (uint64, error) {
	chain, addr, err := c.chainAddress(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return c.explorerSvc.GetBalance(ctx, chain, addr)
}

func (c *beaconClient) SignPayment(
	ctx context.Context, request types.PaymentRequest, reference string,
) (types.SignedPaymentPayload, error) {
	cfg, err := c.GetConfigData(ctx)
	if err != nil {
		return types.SignedPaymentPayload{}, err
	}
	chain, ok := cfg.Chain(request.ChainID)
	if !ok {
		return types.SignedPaymentPayload{}, fmt.Errorf("unknown chain %s", request.ChainID)
	}

	cred, err := c.credential()
	if err != nil {
		return types.SignedPaymentPayload{}, err
	}

	keys := c.keyringSvc(cfg)
	key, err := keys.SigningKey(cred, chain)
	if err != nil {
		return types.SignedPaymentPayload{}, err
	}
	defer key.D.SetInt64(0)

	draft := types.SignedPaymentPayload{
		To:               request.To,
		ChainID:          request.ChainID,
		Amount:           request.Amount,
		PaymentReference: reference,
	}
	return payload.Sign(key, draft)
}

func (c *beaconClient) VerifyPayment(
	_ context.Context, raw []byte,
) (payload.Result, *types.PaymentRequest, error) {
	return c.verifierSvc().VerifyRaw(raw)
}

func (c *beaconClient) PaymentQR(
	_ context.Context, p types.SignedPaymentPayload,
) ([]byte, error) {
	return payload.EncodeQR(p, 256)
}

func (c *beaconClient) SendPayment(
	ctx context.Context, request types.PaymentRequest,
) (SendResult, error) {
	chain, from, err := c.chainAddress(ctx, request.ChainID)
	if err != nil {
		return SendResult{}, err
	}
	if _, err := c.credential(); err != nil {
		return SendResult{}, err
	}

	if c.isOnline() {
		signed, err := c.SignPayment(ctx, request, "")
		if err != nil {
			return SendResult{}, err
		}
		txHash, err := c.explorerSvc.SubmitPayment(ctx, chain, signed)
		if err == nil {
			c.recordSent(ctx, chain.ID, from, txHash, request.Amount)
			return SendResult{Submitted: true, TxHash: txHash}, nil
		}
		if !explorer.IsTransient(err) {
			return SendResult{}, err
		}
		log.Debugf("submission failed transiently, queueing payment: %s", err)
	}

	tx, err := c.queueSvc.Enqueue(ctx, queue.Intent{
		ChainID: request.ChainID,
		From:    from,
		To:      request.To,
		Amount:  request.Amount,
	})
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Queued: &tx}, nil
}

// Submit implements queue.Submitter: it re-signs the queued intent with a
// fresh timestamp and broadcasts it.
func (c *beaconClient) Submit(
	ctx context.Context, tx types.PendingTransaction,
) (string, error) {
	cfg, err := c.GetConfigData(ctx)
	if err != nil {
		return "", err
	}
	chain, ok := cfg.Chain(tx.ChainID)
	if !ok {
		return "", fmt.Errorf("unknown chain %s", tx.ChainID)
	}

	signed, err := c.SignPayment(ctx, types.PaymentRequest{
		To: tx.To, Amount: tx.Amount, ChainID: tx.ChainID,
	}, tx.ID)
	if err != nil {
		return "", err
	}

	txHash, err := c.explorerSvc.SubmitPayment(ctx, chain, signed)
	if err != nil {
		return "", err
	}
	c.recordSent(ctx, tx.ChainID, tx.From, txHash, tx.Amount)
	return txHash, nil
}

func (c *beaconClient) ListPendingTransactions(
	ctx context.Context,
) ([]types.PendingTransaction, error) {
	return c.queueSvc.ListPending(ctx)
}

func (c *beaconClient) CancelPendingTransaction(ctx context.Context, id string) error {
	return c.queueSvc.Cancel(ctx, id)
}

func (c *beaconClient) DrainQueue(ctx context.Context) error {
	if _, err := c.credential(); err != nil {
		return err
	}
	return c.queueSvc.Drain(ctx)
}

func (c *beaconClient) NotifyConnectivity(ctx context.Context, online bool) {
	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	locked := c.cred == nil
	c.mu.Unlock()

	if online && !wasOnline && !locked {
		go func() {
			if err := c.queueSvc.Drain(ctx); err != nil && ctx.Err() == nil {
				log.Warnf("queue drain after reconnect failed: %s", err)
			}
		}()
	}
	if err := c.queueSvc.CheckExpiry(ctx); err != nil {
		log.Debugf("expiry sweep failed: %s", err)
	}
}

func (c *beaconClient) StartProximityScan(
	ctx context.Context, opts ...proximity.ScanOption,
) (*proximity.ScanSession, error) {
	mgr, err := c.proximityMgr()
	if err != nil {
		return nil, err
	}
	timeout := defaultScanTimeout
	if cfg, err := c.GetConfigData(ctx); err == nil && cfg.ScanTimeout > 0 {
		timeout = cfg.ScanTimeout
	}
	return mgr.StartScan(ctx, timeout, opts...)
}

func (c *beaconClient) StopProximityScan() {
	if c.proxMgr != nil {
		c.proxMgr.StopScan()
	}
}

func (c *beaconClient) AdvertisePayment(
	ctx context.Context, adv types.Advertisement,
) error {
	mgr, err := c.proximityMgr()
	if err != nil {
		return err
	}
	return mgr.Advertise(ctx, adv)
}

func (c *beaconClient) SendPaymentToPeer(
	ctx context.Context, peer types.ScannedPeer, p types.SignedPaymentPayload,
) error {
	mgr, err := c.proximityMgr()
	if err != nil {
		return err
	}

	raw, err := payload.Encode(p)
	if err != nil {
		return err
	}

	conn, err := mgr.Connect(ctx, peer, 10*time.Second)
	if err != nil {
		return err
	}
	// nolint
	defer conn.Close()
	return conn.Send(ctx, raw)
}

func (c *beaconClient) StartConflictMonitor(ctx context.Context) error {
	record, err := c.store.WalletStore().GetWallet(ctx)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNoWallet
	}
	cfg, err := c.GetConfigData(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monitorSvc != nil {
		return nil
	}

	targets := make([]monitor.Target, 0, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		addr, ok := record.Addresses[chain.ID]
		if !ok {
			continue
		}
		targets = append(targets, monitor.Target{Chain: chain, Address: addr})
	}

	interval := cfg.MonitorInterval
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	c.monitorSvc = monitor.NewMonitor(
		c.explorerSvc, c.store.HistoryStore(), targets,
		monitor.WithInterval(interval),
	)
	go c.forwardWarnings(c.monitorSvc.Warnings())
	c.monitorSvc.Start(ctx)
	return nil
}

func (c *beaconClient) StopConflictMonitor() {
	c.mu.Lock()
	svc := c.monitorSvc
	c.monitorSvc = nil
	c.mu.Unlock()
	if svc != nil {
		svc.Close()
	}
}

func (c *beaconClient) GetTransactionHistory(
	ctx context.Context, chainID string,
) ([]types.HistoryRecord, error) {
	chain, addr, err := c.chainAddress(ctx, chainID)
	if err != nil {
		return nil, err
	}
	historyStore := c.store.HistoryStore()

	txs, err := c.explorerSvc.GetAddressTxs(ctx, chain, addr)
	if err != nil {
		if !explorer.IsTransient(err) {
			return nil, err
		}
		// offline: serve the cache
		log.Debugf("history refresh skipped: %s", err)
		return historyStore.GetRecords(ctx, chainID, addr)
	}

	known, err := historyStore.GetKnownTxHashes(ctx, chainID, addr)
	if err != nil {
		return nil, err
	}

	records := make([]types.HistoryRecord, 0, len(txs))
	confirmed := make([]string, 0)
	for _, tx := range txs {
		record := types.HistoryRecord{
			TxHash:    tx.TxHash,
			ChainID:   chainID,
			Address:   addr,
			Amount:    tx.Amount,
			Confirmed: tx.Confirmed,
			CreatedAt: time.Unix(tx.BlockTime, 0),
		}
		if strings.EqualFold(tx.From, addr) {
			record.Type = types.TxSent
			if _, ok := known[tx.TxHash]; !ok {
				record.External = true
			}
		} else {
			record.Type = types.TxReceived
		}
		if tx.BlockTime == 0 {
			record.CreatedAt = time.Now()
		}
		records = append(records, record)
		if tx.Confirmed {
			confirmed = append(confirmed, tx.TxHash)
		}
	}

	if _, err := historyStore.AddRecords(ctx, records); err != nil {
		return nil, err
	}
	if len(confirmed) > 0 {
		if _, err := historyStore.ConfirmRecords(ctx, confirmed); err != nil {
			return nil, err
		}
	}
	return historyStore.GetRecords(ctx, chainID, addr)
}

func (c *beaconClient) GetSecurityWarningChannel(
	_ context.Context,
) <-chan types.SecurityWarning {
	return c.warnings.Subscribe(32)
}

func (c *beaconClient) GetPendingTxEventChannel(
	_ context.Context,
) <-chan types.PendingTxEvent {
	return c.store.PendingTxStore().GetEventChannel()
}

func (c *beaconClient) Stop() {
	c.stopOnce.Do(func() {
		c.StopProximityScan()
		c.StopConflictMonitor()
		c.queueSvc.Close()
		c.warnings.Close()
		c.mu.Lock()
		c.wipeCredential()
		c.mu.Unlock()
		c.store.Close()
	})
}

func (c *beaconClient) applyConfig(cfg *types.Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.keys = keyring.New(cfg.Chains)

	verifierOpts := c.verifierOpts
	if cfg.MaxTimestampSkew > 0 {
		verifierOpts = append(
			[]payload.VerifierOption{payload.WithMaxSkew(cfg.MaxTimestampSkew)},
			verifierOpts...,
		)
	}
	c.verifier = payload.NewVerifier(verifierOpts...)

	retry := c.retryPolicy
	if cfg.MaxSubmitAttempts > 0 {
		retry.MaxAttempts = cfg.MaxSubmitAttempts
	}
	c.retryPolicy = retry
	c.mu.Unlock()

	queueOpts := []queue.Option{queue.WithRetryPolicy(retry)}
	if cfg.PaymentTTL > 0 {
		queueOpts = append(queueOpts, queue.WithTTL(cfg.PaymentTTL))
	}
	c.queueSvc.Reconfigure(queueOpts...)
}

func (c *beaconClient) keyringSvc(cfg *types.Config) *keyring.Keyring {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = keyring.New(cfg.Chains)
	}
	return c.keys
}

func (c *beaconClient) verifierSvc() *payload.Verifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verifier == nil {
		c.verifier = payload.NewVerifier(c.verifierOpts...)
	}
	return c.verifier
}

func (c *beaconClient) proximityMgr() (*proximity.Manager, error) {
	if c.proxMgr == nil {
		return nil, proximity.RadioUnavailableError{Reason: "no radio configured"}
	}
	return c.proxMgr, nil
}

func (c *beaconClient) credential() (keyring.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return keyring.Credential{}, ErrWalletLocked
	}
	return *c.cred, nil
}

// freshCredential re-checks the password against the vault even when the
// wallet is already unlocked. Export paths must never ride a stale session.
func (c *beaconClient) freshCredential(
	ctx context.Context, password string,
) (keyring.Credential, error) {
	secret, err := c.vaultSvc.Unlock(ctx, password)
	if err != nil {
		if errors.Is(err, vault.ErrNoVault) {
			return keyring.Credential{}, ErrNoWallet
		}
		return keyring.Credential{}, err
	}
	defer secret.Zero()
	return keyring.DecodeCredential(secret.Bytes())
}

func (c *beaconClient) chainAddress(
	ctx context.Context, chainID string,
) (types.Chain, string, error) {
	cfg, err := c.GetConfigData(ctx)
	if err != nil {
		return types.Chain{}, "", err
	}
	chain, ok := cfg.Chain(chainID)
	if !ok {
		return types.Chain{}, "", fmt.Errorf("unknown chain %s", chainID)
	}
	addr, err := c.Receive(ctx, chainID)
	if err != nil {
		return types.Chain{}, "", err
	}
	return chain, addr, nil
}

func (c *beaconClient) recordSent(
	ctx context.Context, chainID, from, txHash string, amount uint64,
) {
	_, err := c.store.HistoryStore().AddRecords(ctx, []types.HistoryRecord{{
		TxHash:    txHash,
		ChainID:   chainID,
		Address:   from,
		Amount:    amount,
		Type:      types.TxSent,
		CreatedAt: time.Now(),
	}})
	if err != nil {
		log.Warnf("failed to record sent payment %s: %s", txHash, err)
	}
}

func (c *beaconClient) isOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *beaconClient) forwardWarnings(ch <-chan types.SecurityWarning) {
	for warning := range ch {
		c.warnings.Publish(warning)
	}
}

func (c *beaconClient) wipeCredential() {
	if c.cred == nil {
		return
	}
	for i := range c.cred.PrivKey {
		c.cred.PrivKey[i] = 0
	}
	c.cred = nil
}

func buildConfig(args InitArgs) (*types.Config, error) {
	if len(args.Chains) == 0 {
		return nil, fmt.Errorf("at least one chain is required")
	}
	cfg := &types.Config{
		Chains:            args.Chains,
		SelectedChainID:   args.SelectedChainID,
		PaymentTTL:        args.PaymentTTL,
		MaxTimestampSkew:  args.MaxTimestampSkew,
		MonitorInterval:   args.MonitorInterval,
		ScanTimeout:       args.ScanTimeout,
		MaxSubmitAttempts: args.MaxSubmitAttempts,
	}
	if cfg.SelectedChainID == "" {
		cfg.SelectedChainID = cfg.Chains[0].ID
	}
	if _, ok := cfg.Chain(cfg.SelectedChainID); !ok {
		return nil, fmt.Errorf("selected chain %s is not configured", cfg.SelectedChainID)
	}
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = defaultPaymentTTL
	}
	if cfg.MaxTimestampSkew <= 0 {
		cfg.MaxTimestampSkew = payload.DefaultMaxSkew
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = defaultMonitorInterval
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = utils.DefaultRetryPolicy.MaxAttempts
	}
	return cfg, nil
}
