// Package lnd adapts an lnd daemon to the node interfaces of the core.
package lnd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

const (
	defaultTargetConf = 6

	// paymentLookupWindow is how many of the newest payments LookupPayment
	// scans for a hash.
	paymentLookupWindow = 500
)

// Node implements usecase.LightningNode and listener.NodeStreams on top of
// lnd's gRPC API.
type Node struct {
	ln     lnrpc.LightningClient
	state  lnrpc.StateClient
	clock  clock.Clock
	logger zerolog.Logger

	targetConf int32

	// settleIndex is the highest invoice settle index seen, so a new
	// subscription replays settlements missed while disconnected.
	settleIndex atomic.Uint64
}

// Option customizes a Node.
type Option func(*Node)

// WithClock sets the clock used for payment timestamps.
func WithClock(c clock.Clock) Option {
	return func(n *Node) { n.clock = c }
}

// WithTargetConf sets the confirmation target used for on-chain sends and
// fee estimates.
func WithTargetConf(conf int32) Option {
	return func(n *Node) {
		if conf > 0 {
			n.targetConf = conf
		}
	}
}

// New creates a Node over an open connection.
func New(id string, conn grpc.ClientConnInterface, logger zerolog.Logger, opts ...Option) *Node {
	return NewWithClients(id, lnrpc.NewLightningClient(conn), lnrpc.NewStateClient(conn), logger, opts...)
}

// NewWithClients creates a Node from explicit RPC clients.
func NewWithClients(id string, ln lnrpc.LightningClient, state lnrpc.StateClient, logger zerolog.Logger, opts ...Option) *Node {
	n := &Node{
		ln:         ln,
		state:      state,
		clock:      clock.NewDefaultClock(),
		logger:     logger.With().Str("node_id", id).Logger(),
		targetConf: defaultTargetConf,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// GetWalletStatus reports whether the wallet is unlocked and the RPC server
// fully started.
func (n *Node) GetWalletStatus(ctx context.Context) (bool, error) {
	resp, err := n.state.GetState(ctx, &lnrpc.GetStateRequest{})
	if err != nil {
		return false, err
	}
	return resp.State == lnrpc.WalletState_SERVER_ACTIVE, nil
}

// CreateInvoice adds an invoice to the node.
func (n *Node) CreateInvoice(ctx context.Context, req usecase.NodeInvoiceRequest) (*usecase.NodeInvoice, error) {
	resp, err := n.ln.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:   req.Memo,
		Value:  req.AmountSats,
		Expiry: int64(req.Expiry / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("add invoice: %w", err)
	}

	return &usecase.NodeInvoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    hex.EncodeToString(resp.RHash),
	}, nil
}

// SubscribeInvoiceSettlements streams settled invoices until ctx ends or
// the stream fails. Both channels are closed when the stream ends. A new
// subscription resumes after the last settlement this Node has seen.
func (n *Node) SubscribeInvoiceSettlements(ctx context.Context) (<-chan domain.InvoiceSettlement, <-chan error) {
	out := make(chan domain.InvoiceSettlement)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		stream, err := n.ln.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{
			SettleIndex: n.settleIndex.Load(),
		})
		if err != nil {
			errs <- fmt.Errorf("subscribe invoices: %w", err)
			return
		}

		for {
			inv, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("invoice stream: %w", err)
				}
				return
			}
			if inv.State != lnrpc.Invoice_SETTLED {
				continue
			}
			n.observeSettleIndex(inv.SettleIndex)

			select {
			case out <- toInvoiceSettlement(inv):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// RecentSettlements lists settled invoices among the newest limit invoices.
func (n *Node) RecentSettlements(ctx context.Context, limit uint64) ([]domain.InvoiceSettlement, error) {
	resp, err := n.ln.ListInvoices(ctx, &lnrpc.ListInvoiceRequest{
		Reversed:       true,
		NumMaxInvoices: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	var settled []domain.InvoiceSettlement
	for _, inv := range resp.Invoices {
		if inv.State != lnrpc.Invoice_SETTLED {
			continue
		}
		n.observeSettleIndex(inv.SettleIndex)
		settled = append(settled, toInvoiceSettlement(inv))
	}
	return settled, nil
}

func (n *Node) observeSettleIndex(idx uint64) {
	for {
		cur := n.settleIndex.Load()
		if idx <= cur || n.settleIndex.CompareAndSwap(cur, idx) {
			return
		}
	}
}

func toInvoiceSettlement(inv *lnrpc.Invoice) domain.InvoiceSettlement {
	return domain.InvoiceSettlement{
		PaymentHash: hex.EncodeToString(inv.RHash),
		Amount:      inv.AmtPaidSat,
		SettledAt:   time.Unix(inv.SettleDate, 0).UTC(),
	}
}

// PayInvoiceOrAddress sends a Lightning payment synchronously or broadcasts
// an on-chain transaction. On-chain sends report no settlement time; they
// settle once the transaction confirms.
func (n *Node) PayInvoiceOrAddress(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	switch req.Destination.Kind {
	case domain.DestinationLightning:
		return n.payInvoice(ctx, req)
	case domain.DestinationOnchain:
		return n.sendCoins(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDestination, req.Destination.Kind)
	}
}

func (n *Node) payInvoice(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	sendReq := &lnrpc.SendRequest{
		PaymentRequest: req.Destination.Raw,
		FeeLimit: &lnrpc.FeeLimit{
			Limit: &lnrpc.FeeLimit_Fixed{Fixed: req.MaxFee},
		},
	}
	// Zero-amount payment requests need the amount spelled out.
	if req.Destination.Amount == nil {
		sendReq.Amt = req.Amount
	}

	resp, err := n.ln.SendPaymentSync(ctx, sendReq)
	if err != nil {
		return nil, err
	}
	if resp.PaymentError != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentFailed, resp.PaymentError)
	}

	hash := req.Destination.PaymentHash
	if len(resp.PaymentHash) > 0 {
		hash = hex.EncodeToString(resp.PaymentHash)
	}

	var fee int64
	if resp.PaymentRoute != nil {
		fee = msatToSatCeil(resp.PaymentRoute.TotalFeesMsat)
	}
	settledAt := n.clock.Now().UTC()

	n.logger.Info().Str("payment_hash", hash).Int64("amount", req.Amount).Int64("fee", fee).Msg("lightning payment sent")

	return &domain.DispatchResult{
		Hash:       hash,
		Fee:        fee,
		SettledAt:  &settledAt,
		HopPubkeys: hopPubkeys(resp.PaymentRoute),
	}, nil
}

// LookupPayment reports the node's view of an outgoing payment, or
// domain.ErrPaymentNotFound when the node has no record of it.
func (n *Node) LookupPayment(ctx context.Context, paymentHash string) (*domain.NodePayment, error) {
	resp, err := n.ln.ListPayments(ctx, &lnrpc.ListPaymentsRequest{
		IncludeIncomplete: true,
		Reversed:          true,
		MaxPayments:       paymentLookupWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	for _, p := range resp.Payments {
		if p.PaymentHash != paymentHash {
			continue
		}
		np := &domain.NodePayment{PaymentHash: p.PaymentHash, Status: domain.PaymentPending}
		switch p.Status {
		case lnrpc.Payment_SUCCEEDED:
			np.Status = domain.PaymentSucceeded
			np.Fee = msatToSatCeil(p.FeeMsat)
			for _, h := range p.Htlcs {
				if h.Status != lnrpc.HTLCAttempt_SUCCEEDED {
					continue
				}
				np.HopPubkeys = hopPubkeys(h.Route)
				if h.ResolveTimeNs > 0 {
					at := time.Unix(0, h.ResolveTimeNs).UTC()
					np.SettledAt = &at
				}
				break
			}
		case lnrpc.Payment_FAILED:
			np.Status = domain.PaymentFailed
			np.FailureReason = p.FailureReason.String()
		}
		return np, nil
	}
	return nil, domain.ErrPaymentNotFound
}

func hopPubkeys(route *lnrpc.Route) []string {
	if route == nil {
		return nil
	}
	hops := make([]string, 0, len(route.Hops))
	for _, h := range route.Hops {
		hops = append(hops, h.PubKey)
	}
	return hops
}

func (n *Node) sendCoins(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	resp, err := n.ln.SendCoins(ctx, &lnrpc.SendCoinsRequest{
		Addr:       req.Destination.Address,
		Amount:     req.Amount,
		TargetConf: n.targetConf,
		Label:      req.Memo,
	})
	if err != nil {
		return nil, err
	}

	n.logger.Info().Str("txid", resp.Txid).Int64("amount", req.Amount).Msg("on-chain payment broadcast")

	// The actual fee is learned when the transaction confirms.
	return &domain.DispatchResult{Hash: resp.Txid, Fee: req.MaxFee}, nil
}

// EstimateFee quotes the fee for sending amount to dest.
func (n *Node) EstimateFee(ctx context.Context, dest domain.Destination, amount int64) (int64, error) {
	switch dest.Kind {
	case domain.DestinationOnchain:
		resp, err := n.ln.EstimateFee(ctx, &lnrpc.EstimateFeeRequest{
			AddrToAmount: map[string]int64{dest.Address: amount},
			TargetConf:   n.targetConf,
		})
		if err != nil {
			return 0, err
		}
		return resp.FeeSat, nil

	case domain.DestinationLightning:
		payReq, err := n.ln.DecodePayReq(ctx, &lnrpc.PayReqString{PayReq: dest.Raw})
		if err != nil {
			return 0, err
		}
		routes, err := n.ln.QueryRoutes(ctx, &lnrpc.QueryRoutesRequest{
			PubKey: payReq.Destination,
			Amt:    amount,
		})
		if err != nil {
			return 0, err
		}
		if len(routes.Routes) == 0 {
			return 0, errors.New("no route to destination")
		}
		return msatToSatCeil(routes.Routes[0].TotalFeesMsat), nil

	default:
		return 0, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDestination, dest.Kind)
	}
}

// SubscribeTransactions streams wallet transactions as lnd reports them.
// lnd notifies when a transaction is first seen and when it first
// confirms; deeper confirmations come from RecentTransactions.
func (n *Node) SubscribeTransactions(ctx context.Context) (<-chan domain.ChainTransaction, <-chan error) {
	out := make(chan domain.ChainTransaction)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		stream, err := n.ln.SubscribeTransactions(ctx, &lnrpc.GetTransactionsRequest{})
		if err != nil {
			errs <- fmt.Errorf("subscribe transactions: %w", err)
			return
		}

		for {
			tx, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("transaction stream: %w", err)
				}
				return
			}

			select {
			case out <- toChainTransaction(tx):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// RecentTransactions lists wallet transactions mined in the last depth
// blocks plus unconfirmed ones.
func (n *Node) RecentTransactions(ctx context.Context, depth int32) ([]domain.ChainTransaction, error) {
	height, err := n.GetBlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	start := height - depth
	if start < 0 {
		start = 0
	}
	resp, err := n.ln.GetTransactions(ctx, &lnrpc.GetTransactionsRequest{
		StartHeight: start,
		EndHeight:   -1,
	})
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	txs := make([]domain.ChainTransaction, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		txs = append(txs, toChainTransaction(tx))
	}
	return txs, nil
}

// GetBlockHeight returns the node's best block height.
func (n *Node) GetBlockHeight(ctx context.Context) (int32, error) {
	info, err := n.ln.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return 0, fmt.Errorf("get info: %w", err)
	}
	return int32(info.BlockHeight), nil
}

func toChainTransaction(tx *lnrpc.Transaction) domain.ChainTransaction {
	ct := domain.ChainTransaction{
		Hash:          tx.TxHash,
		Confirmations: tx.NumConfirmations,
		Fee:           tx.TotalFees,
		BlockHeight:   tx.BlockHeight,
		Timestamp:     time.Unix(tx.TimeStamp, 0).UTC(),
	}
	for _, o := range tx.OutputDetails {
		if o.Address == "" {
			continue
		}
		ct.Outputs = append(ct.Outputs, domain.ChainOutput{Address: o.Address, Amount: o.Amount})
	}
	return ct
}

func msatToSatCeil(msat int64) int64 {
	return (msat + 999) / 1000
}
