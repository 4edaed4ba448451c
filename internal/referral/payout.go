package referral

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/horizon"
	"stellar-copy-engine/internal/storage"
	"stellar-copy-engine/internal/xdr"
)

// PayoutThreshold is the minimum aggregate unpaid amount per beneficiary.
// Smaller totals roll to the next run untouched.
var PayoutThreshold = decimal.RequireFromString("0.1")

// MaxOpsPerBatch caps payment operations per payout transaction.
const MaxOpsPerBatch = 100

// payoutValidity bounds each batch transaction's time window.
const payoutValidity = 900 * time.Second

// ErrDisbursingBalance reports a disbursing account that cannot cover the
// eligible payout total.
var ErrDisbursingBalance = errors.New("referral: disbursing balance cannot cover payout total")

// PayoutGateway is the slice of the Horizon client the payout job needs.
type PayoutGateway interface {
	Account(ctx context.Context, address string) (*domain.AccountSnapshot, error)
	RecommendedFee(ctx context.Context) int64
	SubmitAsync(ctx context.Context, envelopeB64 string) (string, error)
	AwaitConfirmation(ctx context.Context, hash string) (*horizon.TransactionRecord, error)
}

// PayoutSigner signs batch transactions with the disbursing wallet.
type PayoutSigner interface {
	Sign(ctx context.Context, ownerID string, txHash [32]byte) ([]byte, error)
}

// Payout runs the batch disbursement of accrued referral shares.
type Payout struct {
	rewards storage.RewardStore
	users   storage.UserStore
	gw      PayoutGateway
	signer  PayoutSigner

	passphrase string
	account    string // disbursing G-address
	ownerID    string // custody owner signing the batches
	exportDir  string

	log zerolog.Logger
	now func() time.Time
}

// NewPayout builds the payout job. exportDir empty disables CSV export.
func NewPayout(rewards storage.RewardStore, users storage.UserStore, gw PayoutGateway, signer PayoutSigner, passphrase, account, ownerID, exportDir string, log zerolog.Logger) *Payout {
	return &Payout{
		rewards:    rewards,
		users:      users,
		gw:         gw,
		signer:     signer,
		passphrase: passphrase,
		account:    account,
		ownerID:    ownerID,
		exportDir:  exportDir,
		log:        log.With().Str("component", "payout").Logger(),
		now:        time.Now,
	}
}

// payee is one beneficiary's aggregated claim for this run.
type payee struct {
	beneficiaryID string
	address       string
	amount        decimal.Decimal
	entryIDs      []int64
}

// Run aggregates unpaid entries, pays eligible beneficiaries in batches
// and marks only confirmed batches as paid. Ineligible or failed batches
// roll to the next run; eligibility is recomputed from scratch each time.
func (p *Payout) Run(ctx context.Context) error {
	payees, err := p.eligiblePayees(ctx)
	if err != nil {
		return err
	}
	if len(payees) == 0 {
		p.log.Info().Msg("no beneficiaries over the payout threshold")
		return nil
	}

	total := decimal.Zero
	for _, pe := range payees {
		total = total.Add(pe.amount)
	}
	snap, err := p.gw.Account(ctx, p.account)
	if err != nil {
		return fmt.Errorf("fetch disbursing account: %w", err)
	}
	if snap.TradableNative().LessThan(total) {
		return fmt.Errorf("%w: need %s, tradable %s", ErrDisbursingBalance, total, snap.TradableNative())
	}

	var paid []payee
	for start := 0; start < len(payees); start += MaxOpsPerBatch {
		end := start + MaxOpsPerBatch
		if end > len(payees) {
			end = len(payees)
		}
		batch := payees[start:end]
		if err := p.payBatch(ctx, batch); err != nil {
			p.log.Error().Err(err).Int("batch_start", start).Msg("payout batch failed, remainder rolls to next run")
			break
		}
		paid = append(paid, batch...)
	}

	if p.exportDir != "" && len(paid) > 0 {
		if err := p.exportCSV(paid); err != nil {
			p.log.Error().Err(err).Msg("payout CSV export failed")
		}
	}
	p.log.Info().Int("paid", len(paid)).Int("eligible", len(payees)).Msg("payout run complete")
	return nil
}

// eligiblePayees aggregates unpaid entries per beneficiary and drops those
// under the threshold or without a known wallet.
func (p *Payout) eligiblePayees(ctx context.Context) ([]payee, error) {
	entries, err := p.rewards.ListUnpaid(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unpaid rewards: %w", err)
	}
	byBeneficiary := make(map[string]*payee)
	for _, e := range entries {
		pe, ok := byBeneficiary[e.BeneficiaryID]
		if !ok {
			pe = &payee{beneficiaryID: e.BeneficiaryID}
			byBeneficiary[e.BeneficiaryID] = pe
		}
		pe.amount = pe.amount.Add(e.Amount)
		pe.entryIDs = append(pe.entryIDs, e.ID)
	}

	var payees []payee
	for _, pe := range byBeneficiary {
		if pe.amount.LessThan(PayoutThreshold) {
			continue
		}
		user, err := p.users.Get(ctx, pe.beneficiaryID)
		if err != nil {
			p.log.Warn().Str("beneficiary", pe.beneficiaryID).Err(err).Msg("skipping beneficiary without a wallet")
			continue
		}
		pe.address = user.PublicKey
		payees = append(payees, *pe)
	}
	sort.Slice(payees, func(i, j int) bool { return payees[i].beneficiaryID < payees[j].beneficiaryID })
	return payees, nil
}

// payBatch submits one payment transaction for up to MaxOpsPerBatch
// beneficiaries and marks its entries paid once confirmed.
func (p *Payout) payBatch(ctx context.Context, batch []payee) error {
	snap, err := p.gw.Account(ctx, p.account)
	if err != nil {
		return fmt.Errorf("refresh disbursing sequence: %w", err)
	}
	source, err := xdr.MuxedAccountFromAddress(p.account)
	if err != nil {
		return fmt.Errorf("parse disbursing address: %w", err)
	}

	ops := make([]xdr.Operation, 0, len(batch))
	for _, pe := range batch {
		dest, err := xdr.MuxedAccountFromAddress(pe.address)
		if err != nil {
			return fmt.Errorf("parse beneficiary address %s: %w", pe.address, err)
		}
		stroops, err := xdr.ToStroops(pe.amount)
		if err != nil {
			return fmt.Errorf("convert payout amount %s: %w", pe.amount, err)
		}
		ops = append(ops, xdr.Operation{Body: xdr.OperationBody{
			Type: xdr.OpPayment,
			Payment: &xdr.PaymentOp{
				Destination: dest,
				Asset:       xdr.Asset{Type: xdr.AssetTypeNative},
				Amount:      stroops,
			},
		}})
	}

	env := &xdr.TransactionEnvelope{Tx: xdr.Transaction{
		SourceAccount: source,
		Fee:           uint32(p.gw.RecommendedFee(ctx)) * uint32(len(ops)),
		SeqNum:        snap.Sequence + 1,
		Cond: xdr.Preconditions{
			Type:       xdr.PrecondTime,
			TimeBounds: xdr.TimeBounds{MaxTime: uint64(p.now().Add(payoutValidity).Unix())},
		},
		Operations: ops,
	}}

	hash, err := env.Tx.Hash(p.passphrase)
	if err != nil {
		return fmt.Errorf("hash payout tx: %w", err)
	}
	sig, err := p.signer.Sign(ctx, p.ownerID, hash)
	if err != nil {
		return fmt.Errorf("sign payout tx: %w", err)
	}
	walletKey, err := xdr.MuxedAccountFromAddress(p.account)
	if err != nil {
		return err
	}
	env.Signatures = append(env.Signatures, xdr.DecorateSignature(walletKey.Ed25519, sig))

	b64, err := env.EncodeBase64()
	if err != nil {
		return fmt.Errorf("encode payout tx: %w", err)
	}
	txHash, err := p.gw.SubmitAsync(ctx, b64)
	if err != nil {
		return fmt.Errorf("submit payout tx: %w", err)
	}
	if _, err := p.gw.AwaitConfirmation(ctx, txHash); err != nil {
		return fmt.Errorf("confirm payout tx %s: %w", txHash, err)
	}

	var ids []int64
	for _, pe := range batch {
		ids = append(ids, pe.entryIDs...)
	}
	if err := p.rewards.MarkPaid(ctx, ids, p.now().UnixMilli()); err != nil {
		return fmt.Errorf("mark batch paid: %w", err)
	}
	return nil
}

// exportCSV writes the run's paid list for bookkeeping.
func (p *Payout) exportCSV(paid []payee) error {
	name := fmt.Sprintf("payout-%s.csv", p.now().Format("2006-01-02"))
	f, err := os.Create(filepath.Join(p.exportDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"beneficiary_id", "address", "amount"}); err != nil {
		return err
	}
	for _, pe := range paid {
		if err := w.Write([]string{pe.beneficiaryID, pe.address, pe.amount.String()}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
