package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/blockon/contracts-service/internal/config"
	"github.com/blockon/contracts-service/internal/model"
)

var (
	// ErrRejected reports that the node refused the transaction outright.
	// The submission is terminal: retrying a broadcast blindly risks a
	// duplicate on-chain contract.
	ErrRejected = errors.New("transaction rejected")

	// ErrInsufficientFunds reports that the signing account cannot cover
	// gas for the creation call.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

const createContractGasLimit = 300_000

// EthClient talks to the ledger node over JSON-RPC and signs creation calls
// with the service's configured key. It is passed into the registration
// pipeline as an explicit capability so tests can substitute it.
type EthClient struct {
	rpc     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	log     zerolog.Logger
}

func Dial(ctx context.Context, cfg config.LedgerConfig, log zerolog.Logger) (*EthClient, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger node: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.AgentKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse agent key: %w", err)
	}

	return &EthClient{
		rpc:     rpc,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		log:     log,
	}, nil
}

func (c *EthClient) ConnectedAddress() common.Address {
	return c.from
}

func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// SubmitCreateContract broadcasts one createContractByAccountAddress call to
// the agent's account. Acceptance by the node only means the transaction is
// pending; the contract index is unknown until UpdateContract is observed.
// No retry happens here.
func (c *EthClient) SubmitCreateContract(
	ctx context.Context,
	agent, seller, buyer common.Address,
	contractType uint8,
) (common.Hash, error) {
	data, err := accountABI.Pack("createContractByAccountAddress", agent, seller, buyer, contractType)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack creation call: %w", err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, agent, big.NewInt(0), createContractGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, mapSendError(err)
	}

	c.log.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Str("account", agent.Hex()).
		Msg("creation call broadcast")
	return signed.Hash(), nil
}

// WatchContractUpdates opens a confirmation stream for the given account
// starting at fromBlock. Blocks between fromBlock and the current head are
// backfilled with an explicit log filter before the live subscription takes
// over, so an event emitted right at fromBlock is never missed.
func (c *EthClient) WatchContractUpdates(
	ctx context.Context,
	account common.Address,
	fromBlock uint64,
) (Subscription, error) {
	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head block: %w", err)
	}

	rawLogs := make(chan types.Log, 16)
	ethSub, err := c.rpc.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{account},
		Topics:    [][]common.Hash{{accountABI.Events["UpdateContract"].ID}},
	}, rawLogs)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	backfill, err := c.FilterContractUpdates(ctx, account, fromBlock, head)
	if err != nil {
		ethSub.Unsubscribe()
		return nil, err
	}

	src := make(chan model.ConfirmationEvent, len(backfill)+16)
	srcErr := make(chan error, 1)
	quit := make(chan struct{})

	go func() {
		defer close(src)
		for _, event := range backfill {
			select {
			case src <- event:
			case <-quit:
				return
			}
		}
		for {
			select {
			case <-quit:
				return
			case err, ok := <-ethSub.Err():
				if ok && err != nil {
					srcErr <- err
				}
				return
			case lg := <-rawLogs:
				event, err := decodeUpdateContract(lg)
				if err != nil {
					c.log.Warn().Err(err).Uint64("block", lg.BlockNumber).Msg("undecodable UpdateContract log")
					continue
				}
				select {
				case src <- event:
				case <-quit:
					return
				}
			}
		}
	}()

	stop := func() {
		ethSub.Unsubscribe()
		close(quit)
	}
	return newConfirmationStream(src, srcErr, stop), nil
}

// FilterContractUpdates reads already-mined UpdateContract events in the
// given block range. The reconciliation sweep uses it to find confirmations
// whose live listener was torn down before consuming them.
func (c *EthClient) FilterContractUpdates(
	ctx context.Context,
	account common.Address,
	fromBlock, toBlock uint64,
) ([]model.ConfirmationEvent, error) {
	logs, err := c.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{account},
		Topics:    [][]common.Hash{{accountABI.Events["UpdateContract"].ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	events := make([]model.ConfirmationEvent, 0, len(logs))
	for _, lg := range logs {
		event, err := decodeUpdateContract(lg)
		if err != nil {
			c.log.Warn().Err(err).Uint64("block", lg.BlockNumber).Msg("undecodable UpdateContract log")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func decodeUpdateContract(lg types.Log) (model.ConfirmationEvent, error) {
	values, err := accountABI.Unpack("UpdateContract", lg.Data)
	if err != nil {
		return model.ConfirmationEvent{}, err
	}
	if len(values) != 1 {
		return model.ConfirmationEvent{}, fmt.Errorf("unexpected UpdateContract arity: %d", len(values))
	}
	index, ok := values[0].(*big.Int)
	if !ok {
		return model.ConfirmationEvent{}, fmt.Errorf("unexpected contractIndex type %T", values[0])
	}
	return model.ConfirmationEvent{
		ContractIndex: index.Int64(),
		BlockNumber:   lg.BlockNumber,
	}, nil
}

func mapSendError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient funds") {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return fmt.Errorf("%w: %v", ErrRejected, err)
}
