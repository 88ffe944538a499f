package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"SupplyLedger/internal/confirm"
	"SupplyLedger/internal/keystore"
	"SupplyLedger/internal/ledger"
	"SupplyLedger/internal/models"
	"SupplyLedger/internal/recorder"
	"SupplyLedger/internal/txbuilder"
	"SupplyLedger/utils"
)

// DefaultFundSOL is airdropped by AutoFund to wallets without an explicit amount.
const DefaultFundSOL = 2.0

type WalletInfo struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

type SummaryEntry struct {
	Name      string   `json:"name"`
	PublicKey string   `json:"public_key"`
	Balance   *float64 `json:"sol_balance,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type WalletDetails struct {
	WalletInfo
	Balance      float64              `json:"sol_balance"`
	BalanceError string               `json:"balance_error,omitempty"`
	Transactions []models.LedgerEntry `json:"recent_transactions"`
	Assets       []models.AssetRecord `json:"assets"`
}

type FundOutcome struct {
	Wallet        string                 `json:"wallet"`
	BalanceBefore float64                `json:"balance_before"`
	Funded        bool                   `json:"funded"`
	Record        *models.TransferRecord `json:"record,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

type Options struct {
	// BalanceCommitment is used for balance reads.
	BalanceCommitment rpc.CommitmentType
	// RecentLimit bounds the history returned by WalletDetails.
	RecentLimit int
	// Concurrency bounds the fan-out of WalletSummary and AutoFund.
	Concurrency int
}

func (o *Options) defaults() {
	if o.BalanceCommitment == "" {
		o.BalanceCommitment = rpc.CommitmentConfirmed
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
}

// WalletService resolves names to keys, builds and submits transactions,
// waits for their outcome and records the result. Operations on the same
// wallet are not serialized; callers needing strict per-wallet ordering
// must serialize their own calls.
type WalletService struct {
	keys    *keystore.KeyStore
	client  ledger.Client
	builder *txbuilder.Builder
	tracker *confirm.Tracker
	records recorder.Recorder
	cache   *BalanceCache
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	// assetLocks holds one *sync.Mutex per product id.
	assetLocks sync.Map
	watchMu    sync.Mutex
	watch      func(solana.PublicKey)
}

func NewWalletService(keys *keystore.KeyStore, client ledger.Client, tracker *confirm.Tracker, records recorder.Recorder, logger zerolog.Logger, opts Options) *WalletService {
	opts.defaults()
	return &WalletService{
		keys:    keys,
		client:  client,
		builder: txbuilder.New(client, logger),
		tracker: tracker,
		records: records,
		cache:   NewBalanceCache(),
		opts:    opts,
		logger:  logger.With().Str("component", "wallet_service").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Cache exposes the balance cache to the watcher.
func (s *WalletService) Cache() *BalanceCache { return s.cache }

// lockAsset serializes read-modify-write cycles on one asset record within
// this process.
func (s *WalletService) lockAsset(productID string) func() {
	v, _ := s.assetLocks.LoadOrStore(productID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *WalletService) resolve(name string) (keystore.Wallet, solana.PublicKey, error) {
	w, err := s.keys.Get(name)
	if err != nil {
		return keystore.Wallet{}, solana.PublicKey{}, translate(err)
	}
	addr, err := w.Address()
	if err != nil {
		return keystore.Wallet{}, solana.PublicKey{}, err
	}
	return w, addr, nil
}

func (s *WalletService) refreshBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	lamports, err := s.client.GetBalance(ctx, addr, s.opts.BalanceCommitment)
	if err != nil {
		return 0, err
	}
	s.cache.Set(addr.String(), lamports)
	return lamports, nil
}

// knownBalance prefers the cache and reads the network only on a miss.
func (s *WalletService) knownBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	if lamports, ok := s.cache.Get(addr.String()); ok {
		return lamports, nil
	}
	return s.refreshBalance(ctx, addr)
}

// Balance reads the wallet's balance from the network, in SOL.
func (s *WalletService) Balance(ctx context.Context, name string) (float64, error) {
	_, addr, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	lamports, err := s.refreshBalance(ctx, addr)
	if err != nil {
		return 0, err
	}
	return utils.FromLamports(lamports), nil
}

func (s *WalletService) newTransfer(kind string, amount float64, lamports uint64) *models.TransferRecord {
	return &models.TransferRecord{
		TransactionID: uuid.NewString(),
		Kind:          kind,
		Amount:        amount,
		Lamports:      lamports,
		Timestamp:     s.now(),
		Status:        models.StatusPending,
	}
}

func statusOf(state confirm.State) string {
	switch state {
	case confirm.StateConfirmed:
		return models.StatusConfirmed
	case confirm.StateFailed:
		return models.StatusFailed
	case confirm.StateTimedOut:
		return models.StatusTimedOut
	}
	return models.StatusPending
}

// finish applies the outcome to rec and persists it. The write survives a
// cancelled ctx so an expired caller still leaves an audit trail.
func (s *WalletService) finish(ctx context.Context, rec *models.TransferRecord, res confirm.Result) {
	if !res.Signature.IsZero() {
		rec.Signature = res.Signature.String()
	}
	rec.Status = statusOf(res.State)
	rec.Slot = res.Slot
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := s.records.FinalizeTransfer(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error().Err(err).Str("transaction_id", rec.TransactionID).Msg("finalize record failed")
	}
	ev := s.logger.Info()
	if res.Err != nil {
		ev = s.logger.Warn().Err(res.Err)
	}
	ev.Str("kind", rec.Kind).
		Str("transaction_id", rec.TransactionID).
		Str("signature", rec.Signature).
		Str("status", rec.Status).
		Msg("transaction settled")
}

// Fund requests a devnet airdrop into the wallet and waits for it.
func (s *WalletService) Fund(ctx context.Context, name string, amount float64) (*models.TransferRecord, error) {
	_, addr, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	lamports, err := utils.ToLamports(amount)
	if err != nil {
		return nil, translate(err)
	}

	rec := s.newTransfer(models.KindAirdrop, amount, lamports)
	rec.ToWallet = name
	rec.ToAddress = addr.String()
	if err := s.records.AppendTransfer(ctx, rec); err != nil {
		return nil, err
	}

	sig, err := s.client.RequestAirdrop(ctx, addr, lamports)
	if err != nil {
		// without a signature a lost reply cannot be checked later
		res := confirm.Result{State: confirm.StateTimedOut, Err: fmt.Errorf("%w: airdrop outcome unknown: %w", ErrTimedOut, err)}
		if errors.Is(err, ledger.ErrRejected) {
			res = confirm.Result{State: confirm.StateFailed, Err: fmt.Errorf("%w: %w", ErrTransactionFailed, err)}
		}
		s.finish(ctx, rec, res)
		return rec, res.Err
	}
	res := s.tracker.Await(ctx, sig)
	s.finish(ctx, rec, res)
	s.cache.Invalidate(addr.String())
	return rec, res.Err
}

// Transfer moves amount SOL between two named wallets. Construction errors,
// including the insufficient-funds guard, return before anything is
// submitted or recorded. Once submitted, the record is persisted whatever
// the outcome and returned alongside any error.
func (s *WalletService) Transfer(ctx context.Context, from, to string, amount float64) (*models.TransferRecord, error) {
	if from == to {
		return nil, fmt.Errorf("%w: sender and receiver are both %q", ErrInvalidRequest, from)
	}
	fw, faddr, err := s.resolve(from)
	if err != nil {
		return nil, err
	}
	_, taddr, err := s.resolve(to)
	if err != nil {
		return nil, err
	}
	lamports, err := utils.ToLamports(amount)
	if err != nil {
		return nil, translate(err)
	}
	signer, err := fw.Signer()
	if err != nil {
		return nil, err
	}
	known, err := s.knownBalance(ctx, faddr)
	if err != nil {
		return nil, err
	}

	tx, blockhash, err := s.builder.Transfer(ctx, txbuilder.TransferParams{
		From:         signer,
		To:           taddr,
		Lamports:     lamports,
		KnownBalance: known,
	})
	if err != nil {
		return nil, err
	}

	rec := s.newTransfer(models.KindTransfer, amount, lamports)
	rec.FromWallet, rec.FromAddress = from, faddr.String()
	rec.ToWallet, rec.ToAddress = to, taddr.String()
	rec.Blockhash = blockhash.String()
	rec.Signature = tx.Signatures[0].String()
	if err := s.records.AppendTransfer(ctx, rec); err != nil {
		return nil, err
	}

	res, err := s.tracker.SubmitAndAwait(ctx, tx)
	s.finish(ctx, rec, res)
	s.cache.Invalidate(faddr.String(), taddr.String())
	return rec, err
}

// MintAsset issues a single-supply token for productID, paid for and held by
// owner. A failed mint returns an unsaved record so the product id stays
// free; a timed-out mint is saved off-chain since it may still land. A
// product id whose earlier mint turned out to have failed can be minted
// again.
func (s *WalletService) MintAsset(ctx context.Context, productID, owner string, metadata map[string]any) (*models.AssetRecord, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrInvalidRequest)
	}
	unlock := s.lockAsset(productID)
	defer unlock()

	replace := false
	existing, err := s.records.GetAsset(ctx, productID)
	switch {
	case err == nil:
		if err := s.settleAsset(ctx, existing); err != nil {
			return nil, err
		}
		if existing.Status != models.StatusFailed {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, productID)
		}
		replace = true
	case !errors.Is(err, recorder.ErrNotFound):
		return nil, err
	}
	w, addr, err := s.resolve(owner)
	if err != nil {
		return nil, err
	}
	signer, err := w.Signer()
	if err != nil {
		return nil, err
	}
	known, err := s.knownBalance(ctx, addr)
	if err != nil {
		return nil, err
	}

	plan, err := s.builder.MintNFT(ctx, txbuilder.MintParams{Payer: signer, KnownBalance: &known})
	if err != nil {
		return nil, err
	}

	rent := plan.MintRent + plan.AccountRent
	rec := s.newTransfer(models.KindMint, utils.FromLamports(rent), rent)
	rec.FromWallet, rec.FromAddress = owner, addr.String()
	rec.ToAddress = plan.TokenAccount.String()
	rec.ProductID = productID
	rec.Blockhash = plan.Blockhash.String()
	rec.Signature = plan.Tx.Signatures[0].String()
	if err := s.records.AppendTransfer(ctx, rec); err != nil {
		return nil, err
	}

	res, txErr := s.tracker.SubmitAndAwait(ctx, plan.Tx)
	s.finish(ctx, rec, res)
	s.cache.Invalidate(addr.String())

	now := s.now()
	asset := &models.AssetRecord{
		ProductID:            productID,
		MintAddress:          plan.Mint.String(),
		TokenAccount:         plan.TokenAccount.String(),
		OwnerWallet:          owner,
		OwnerAddress:         addr.String(),
		Metadata:             copyMetadata(metadata),
		CreatedAt:            now,
		UpdatedAt:            now,
		TransactionSignature: rec.Signature,
		Status:               rec.Status,
		OnChain:              res.State == confirm.StateConfirmed,
	}
	if res.State == confirm.StateFailed {
		return asset, txErr
	}
	store := s.records.CreateAsset
	if replace {
		store = s.records.UpdateAsset
	}
	if err := store(context.WithoutCancel(ctx), asset); err != nil {
		return asset, translate(err)
	}
	s.logger.Info().
		Str("product_id", productID).
		Str("mint", asset.MintAddress).
		Bool("on_chain", asset.OnChain).
		Msg("asset recorded")
	return asset, txErr
}

// settleAsset rechecks a mint that timed out with one history search. A
// signature at the target commitment puts the asset on chain; a failed
// one marks it failed. Anything else leaves the record as it is.
func (s *WalletService) settleAsset(ctx context.Context, asset *models.AssetRecord) error {
	if asset.OnChain || asset.Status != models.StatusTimedOut || asset.TransactionSignature == "" {
		return nil
	}
	sig, err := solana.SignatureFromBase58(asset.TransactionSignature)
	if err != nil {
		return fmt.Errorf("%w: asset %s signature: %v", ErrEncoding, asset.ProductID, err)
	}
	statuses, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", asset.ProductID).Msg("mint status check failed")
		return nil
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil
	}
	st := statuses[0]
	switch {
	case st.Err != nil:
		asset.Status = models.StatusFailed
	case ledger.CommitmentRank(st.Commitment) >= ledger.CommitmentRank(s.tracker.Policy().Target):
		asset.Status = models.StatusConfirmed
		asset.OnChain = true
	default:
		return nil
	}
	asset.UpdatedAt = s.now()
	if err := s.records.UpdateAsset(ctx, asset); err != nil {
		return translate(err)
	}
	s.logger.Info().
		Str("product_id", asset.ProductID).
		Str("status", asset.Status).
		Msg("timed-out mint settled")
	return nil
}

// TransferAssetOwnership reassigns the asset to newOwner in the record only.
// The token stays in the holding account created at mint time, so the
// record is marked off-chain and keeps the previous owner.
func (s *WalletService) TransferAssetOwnership(ctx context.Context, productID, newOwner string) (*models.AssetRecord, error) {
	unlock := s.lockAsset(productID)
	defer unlock()
	asset, err := s.records.GetAsset(ctx, productID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.settleAsset(ctx, asset); err != nil {
		return nil, err
	}
	if !asset.OnChain {
		return nil, fmt.Errorf("%w: asset %s is not on chain", ErrNotFound, productID)
	}
	_, addr, err := s.resolve(newOwner)
	if err != nil {
		return nil, err
	}
	if asset.OwnerWallet == newOwner {
		return asset, nil
	}
	asset.PreviousOwner = asset.OwnerWallet
	asset.OwnerWallet = newOwner
	asset.OwnerAddress = addr.String()
	asset.Ownership = models.OwnershipOffChain
	asset.UpdatedAt = s.now()
	if err := s.records.UpdateAsset(ctx, asset); err != nil {
		return nil, translate(err)
	}
	s.logger.Info().
		Str("product_id", productID).
		Str("from", asset.PreviousOwner).
		Str("to", newOwner).
		Msg("asset ownership updated")
	return asset, nil
}

// UpdateAssetMetadata merges patch into the asset's metadata. A nil value
// removes the key.
func (s *WalletService) UpdateAssetMetadata(ctx context.Context, productID string, patch map[string]any) (*models.AssetRecord, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty metadata patch", ErrInvalidRequest)
	}
	unlock := s.lockAsset(productID)
	defer unlock()
	asset, err := s.records.GetAsset(ctx, productID)
	if err != nil {
		return nil, translate(err)
	}
	if asset.Metadata == nil {
		asset.Metadata = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(asset.Metadata, k)
			continue
		}
		asset.Metadata[k] = v
	}
	asset.UpdatedAt = s.now()
	if err := s.records.UpdateAsset(ctx, asset); err != nil {
		return nil, translate(err)
	}
	return asset, nil
}

// WalletDetails combines the live balance with recent history. A balance
// read failure is reported in the result rather than failing the call.
func (s *WalletService) WalletDetails(ctx context.Context, name string) (*WalletDetails, error) {
	w, addr, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	d := &WalletDetails{WalletInfo: WalletInfo{Name: w.Name, PublicKey: w.PublicKey}}
	if lamports, err := s.refreshBalance(ctx, addr); err != nil {
		d.BalanceError = err.Error()
	} else {
		d.Balance = utils.FromLamports(lamports)
	}
	if d.Transactions, err = s.records.ListTransactions(ctx, recorder.Filter{Wallet: name, Limit: s.opts.RecentLimit}); err != nil {
		return nil, err
	}
	if d.Assets, err = s.records.ListAssets(ctx, name); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *WalletService) CreateWallet(name string) (WalletInfo, error) {
	w, err := s.keys.Create(name)
	if err != nil {
		return WalletInfo{}, translate(err)
	}
	s.logger.Info().Str("wallet", w.Name).Str("public_key", w.PublicKey).Msg("wallet created")
	s.watchMu.Lock()
	watch := s.watch
	s.watchMu.Unlock()
	if watch != nil {
		if addr, err := w.Address(); err == nil {
			watch(addr)
		}
	}
	return WalletInfo{Name: w.Name, PublicKey: w.PublicKey}, nil
}

// WatchBalances subscribes w to every known wallet and to each wallet
// created afterwards, until ctx ends.
func (s *WalletService) WatchBalances(ctx context.Context, w *BalanceWatcher) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	var addrs []solana.PublicKey
	for _, wallet := range s.keys.List() {
		if pk, err := wallet.Address(); err == nil {
			addrs = append(addrs, pk)
		}
	}
	if err := w.Watch(ctx, addrs); err != nil {
		return err
	}
	s.watch = func(addr solana.PublicKey) {
		if err := w.WatchAccount(ctx, addr); err != nil {
			s.logger.Warn().Err(err).Str("address", addr.String()).Msg("new wallet not watched")
		}
	}
	return nil
}

func (s *WalletService) Wallet(name string) (WalletInfo, error) {
	w, err := s.keys.Get(name)
	if err != nil {
		return WalletInfo{}, translate(err)
	}
	return WalletInfo{Name: w.Name, PublicKey: w.PublicKey}, nil
}

func (s *WalletService) ListWallets() []WalletInfo {
	wallets := s.keys.List()
	out := make([]WalletInfo, len(wallets))
	for i, w := range wallets {
		out[i] = WalletInfo{Name: w.Name, PublicKey: w.PublicKey}
	}
	return out
}

// WalletSummary reads every wallet's balance concurrently. Per-wallet
// failures are reported in the entry.
func (s *WalletService) WalletSummary(ctx context.Context) []SummaryEntry {
	wallets := s.keys.List()
	out := make([]SummaryEntry, len(wallets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, w := range wallets {
		out[i] = SummaryEntry{Name: w.Name, PublicKey: w.PublicKey}
		g.Go(func() error {
			bal, err := s.Balance(gctx, w.Name)
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].Balance = &bal
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AutoFund airdrops to every wallet whose balance is below minBalance.
// amounts selects the wallets and their top-up; when empty every wallet
// is considered with DefaultFundSOL.
func (s *WalletService) AutoFund(ctx context.Context, minBalance float64, amounts map[string]float64) ([]FundOutcome, error) {
	if minBalance < 0 {
		return nil, fmt.Errorf("%w: negative minimum balance", ErrInvalidRequest)
	}
	if len(amounts) == 0 {
		amounts = make(map[string]float64)
		for _, w := range s.keys.List() {
			amounts[w.Name] = DefaultFundSOL
		}
	}
	names := make([]string, 0, len(amounts))
	for name := range amounts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FundOutcome, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, name := range names {
		out[i].Wallet = name
		g.Go(func() error {
			bal, err := s.Balance(gctx, name)
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].BalanceBefore = bal
			if bal >= minBalance {
				return nil
			}
			rec, err := s.Fund(gctx, name, amounts[name])
			out[i].Record = rec
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].Funded = true
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// ProcessPayment records a payment intent between two wallets. Nothing is
// submitted to the network.
func (s *WalletService) ProcessPayment(ctx context.Context, from, to string, amount float64, productID string) (*models.PaymentRecord, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if _, _, err := s.resolve(from); err != nil {
		return nil, err
	}
	if _, _, err := s.resolve(to); err != nil {
		return nil, err
	}
	rec := &models.PaymentRecord{
		PaymentID:  uuid.NewString(),
		FromWallet: from,
		ToWallet:   to,
		Amount:     amount,
		ProductID:  productID,
		Timestamp:  s.now(),
		Status:     models.StatusProcessed,
	}
	if err := s.records.AppendPayment(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().Str("from", from).Str("to", to).Float64("amount", amount).Msg("payment processed")
	return rec, nil
}

func (s *WalletService) GetAsset(ctx context.Context, productID string) (*models.AssetRecord, error) {
	asset, err := s.records.GetAsset(ctx, productID)
	return asset, translate(err)
}

func (s *WalletService) AssetsByOwner(ctx context.Context, owner string) ([]models.AssetRecord, error) {
	return s.records.ListAssets(ctx, owner)
}

func (s *WalletService) TransactionHistory(ctx context.Context, f recorder.Filter) ([]models.LedgerEntry, error) {
	switch f.Kind {
	case "", models.KindTransfer, models.KindPayment, models.KindAirdrop, models.KindMint:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, f.Kind)
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidRequest)
	}
	return s.records.ListTransactions(ctx, f)
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
