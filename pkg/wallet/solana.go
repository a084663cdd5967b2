package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"cashier/config"
)

const solDecimals = 9

// SolanaConnector signs and broadcasts on Solana.
type SolanaConnector struct {
	cfg        config.SolanaConfig
	client     *rpc.Client
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewSolanaConnector creates a Solana connector.
func NewSolanaConnector(cfg config.SolanaConfig) (*SolanaConnector, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for Solana")
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured for Solana")
	}

	client := rpc.New(cfg.RPCUrl)

	privateKey, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &SolanaConnector{
		cfg:        cfg,
		client:     client,
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

// Address returns the connected wallet address.
func (s *SolanaConnector) Address() (string, error) {
	return s.publicKey.String(), nil
}

// BlockExplorerURLs returns the configured explorer base URLs.
func (s *SolanaConnector) BlockExplorerURLs() []string {
	return s.cfg.ExplorerURLs
}

// ExecuteSwap settles a swap against the house vault: the source token
// moves to the vault, which credits the destination token custodially.
func (s *SolanaConnector) ExecuteSwap(ctx context.Context, p SwapParams) SwapResult {
	if s.cfg.HouseVault == "" {
		return SwapResult{Err: "no house vault configured for solana"}
	}

	txHash, err := s.Transfer(ctx, TransferParams{
		TokenAddress: p.FromTokenAddress,
		Decimals:     p.FromTokenDecimals,
		To:           s.cfg.HouseVault,
		Amount:       p.Amount,
	})
	if err != nil {
		return SwapResult{Err: err.Error()}
	}
	return SwapResult{Success: true, TxHash: txHash}
}

// Transfer sends native SOL or an SPL token.
func (s *SolanaConnector) Transfer(ctx context.Context, p TransferParams) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(p.To)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}

	var signature solana.Signature
	if p.TokenAddress == "" {
		signature, err = s.sendNativeSOL(ctx, recipient, p.Amount)
	} else {
		signature, err = s.sendSPLToken(ctx, recipient, p.TokenAddress, p.Amount, p.Decimals)
	}
	if err != nil {
		return "", err
	}
	return signature.String(), nil
}

func (s *SolanaConnector) sendNativeSOL(ctx context.Context, recipient solana.PublicKey, amount string) (solana.Signature, error) {
	lamportsInt, err := toBaseUnits(amount, solDecimals)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid amount: %w", err)
	}
	lamports := lamportsInt.Uint64()

	balance, err := s.client.GetBalance(ctx, s.publicKey, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get balance: %w", err)
	}

	// 5000 lamports per signature
	minRequired := lamports + 5000
	if balance.Value < minRequired {
		return solana.Signature{}, fmt.Errorf("insufficient balance: have %d lamports, need %d lamports (including fees)", balance.Value, minRequired)
	}

	recent, err := s.client.GetRecentBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	instruction := system.NewTransferInstruction(
		lamports,
		s.publicKey,
		recipient,
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(s.publicKey),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	return s.signAndSend(ctx, tx)
}

func (s *SolanaConnector) sendSPLToken(ctx context.Context, recipient solana.PublicKey, mintStr, amount string, decimals int) (solana.Signature, error) {
	tokenMint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid token mint address: %w", err)
	}

	baseAmount, err := toBaseUnits(amount, decimals)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid amount: %w", err)
	}
	tokenAmount := baseAmount.Uint64()

	sourceTokenAccount, _, err := solana.FindAssociatedTokenAddress(s.publicKey, tokenMint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive source token account: %w", err)
	}

	balance, err := s.client.GetTokenAccountBalance(ctx, sourceTokenAccount, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get token balance: %w", err)
	}
	have, err := decimal.NewFromString(balance.Value.Amount)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to parse token balance: %w", err)
	}
	if have.LessThan(decimal.NewFromBigInt(baseAmount, 0)) {
		return solana.Signature{}, fmt.Errorf("insufficient token balance: have %s, need %s", balance.Value.Amount, baseAmount.String())
	}

	destTokenAccount, _, err := solana.FindAssociatedTokenAddress(recipient, tokenMint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	destExists, err := s.accountExists(ctx, destTokenAccount)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to check destination account: %w", err)
	}

	recent, err := s.client.GetRecentBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	instructions := []solana.Instruction{}
	if !destExists {
		createAccountIx := associatedtokenaccount.NewCreateInstruction(
			s.publicKey, // payer
			recipient,   // wallet
			tokenMint,   // mint
		).Build()
		instructions = append(instructions, createAccountIx)
	}

	transferIx := token.NewTransferInstruction(
		tokenAmount,
		sourceTokenAccount,
		destTokenAccount,
		s.publicKey,
		[]solana.PublicKey{},
	).Build()
	instructions = append(instructions, transferIx)

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(s.publicKey),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	return s.signAndSend(ctx, tx)
}

func (s *SolanaConnector) signAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       s.cfg.SkipPreflight,
		PreflightCommitment: s.commitment(),
	}
	sig, err := s.client.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// Balance reads the wallet's balance of SOL or an SPL token in main
// units.
func (s *SolanaConnector) Balance(ctx context.Context, tokenAddress string, decimals int) (decimal.Decimal, error) {
	if tokenAddress == "" {
		balance, err := s.client.GetBalance(ctx, s.publicKey, rpc.CommitmentFinalized)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
		}
		return decimal.NewFromInt(int64(balance.Value)).Shift(-solDecimals), nil
	}

	mint, err := solana.PublicKeyFromBase58(tokenAddress)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid token mint address: %w", err)
	}
	tokenAccount, _, err := solana.FindAssociatedTokenAddress(s.publicKey, mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive token account: %w", err)
	}

	balance, err := s.client.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentFinalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get token balance: %w", err)
	}
	raw, err := decimal.NewFromString(balance.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse token balance: %w", err)
	}
	return raw.Shift(int32(-decimals)), nil
}

func (s *SolanaConnector) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	accountInfo, err := s.client.GetAccountInfo(ctx, account)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	return accountInfo.Value != nil, nil
}

func (s *SolanaConnector) commitment() rpc.CommitmentType {
	switch strings.ToLower(s.cfg.Commitment) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// Close closes any open connections
func (s *SolanaConnector) Close() {
	// The Solana RPC client doesn't require explicit cleanup
}
