package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/blockon/contracts-service/internal/config"
	"github.com/blockon/contracts-service/internal/ledger"
	"github.com/blockon/contracts-service/internal/model"
	"github.com/blockon/contracts-service/internal/repository"
)

type IdentityRegistry interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByEthAddress(ctx context.Context, ethAddress string) (*model.User, error)
	SearchEmails(ctx context.Context, query string, limit int) ([]string, error)
}

type ContractStore interface {
	Create(ctx context.Context, contract model.Contract) (*model.Contract, error)
	GetByIndex(ctx context.Context, contractIndex int64) (*model.Contract, error)
	ListByAgent(ctx context.Context, agentAddress string) ([]model.Contract, error)
	ExistsByIndex(ctx context.Context, contractIndex int64) (bool, error)
}

type JournalStore interface {
	Create(ctx context.Context, entry model.RegistrationJournal) (uuid.UUID, error)
	SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error
	SetState(ctx context.Context, id uuid.UUID, state model.RegistrationState) error
	ListStuck(ctx context.Context, olderThan time.Duration) ([]model.RegistrationJournal, error)
}

type Ledger interface {
	BlockNumber(ctx context.Context) (uint64, error)
	SubmitCreateContract(ctx context.Context, agent, seller, buyer common.Address, contractType uint8) (common.Hash, error)
	WatchContractUpdates(ctx context.Context, account common.Address, fromBlock uint64) (ledger.Subscription, error)
	FilterContractUpdates(ctx context.Context, account common.Address, fromBlock, toBlock uint64) ([]model.ConfirmationEvent, error)
}

type PaperGenerator interface {
	Generate(contract model.Contract) ([]byte, error)
}

type LedgerExporter interface {
	Generate(contracts []model.Contract) ([]byte, error)
}

type ContractService struct {
	users          IdentityRegistry
	contracts      ContractStore
	journal        JournalStore
	ledger         Ledger
	pdf            PaperGenerator
	excel          LedgerExporter
	confirmTimeout time.Duration
	log            zerolog.Logger

	// One submission in flight per agent account: the signing identity is
	// shared, and concurrent creation calls would race on the nonce.
	submitMu    sync.Mutex
	submitLocks map[string]*sync.Mutex
}

func NewContractService(
	users IdentityRegistry,
	contracts ContractStore,
	journal JournalStore,
	ledgerClient Ledger,
	pdf PaperGenerator,
	excel LedgerExporter,
	cfg *config.Config,
	log zerolog.Logger,
) *ContractService {
	return &ContractService{
		users:          users,
		contracts:      contracts,
		journal:        journal,
		ledger:         ledgerClient,
		pdf:            pdf,
		excel:          excel,
		confirmTimeout: cfg.Ledger.ConfirmTimeout,
		log:            log,
		submitLocks:    make(map[string]*sync.Mutex),
	}
}

type RegisterInput struct {
	Principal       model.Principal
	SellerEmail     string
	BuyerEmail      string
	BuildingType    model.BuildingType
	BuildingName    string
	BuildingAddress string
	PhotoPath       string
	ContractDate    time.Time
	ContractType    model.ContractType
}

// Register runs the registration pipeline: resolve the three identities,
// submit the creation call, wait for the UpdateContract confirmation, and
// persist the finalized record. The ledger and the database share no
// transaction boundary; the journal entry written before submission is what
// the reconciliation sweep uses when the pipeline dies between the two.
func (s *ContractService) Register(ctx context.Context, input RegisterInput) (*model.Contract, error) {
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	state := StateIdle
	advance := func(event Event) error {
		next, err := Next(state, event)
		if err != nil {
			return fmt.Errorf("registration state machine: %w", err)
		}
		s.log.Debug().Str("from", string(state)).Str("to", string(next)).Msg("registration transition")
		state = next
		return nil
	}
	fail := func() {
		if next, err := Next(state, EventPipelineFailed); err == nil {
			state = next
		}
	}

	if err := advance(EventSubmitRequested); err != nil {
		return nil, err
	}

	// The three resolutions are independent reads; run them concurrently
	// and join before anything touches the ledger.
	var agent, seller, buyer *model.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.resolveByEthAddress(gctx, input.Principal.EthAddress)
		agent = user
		return err
	})
	g.Go(func() error {
		user, err := s.resolveByEmail(gctx, input.SellerEmail)
		seller = user
		return err
	})
	g.Go(func() error {
		user, err := s.resolveByEmail(gctx, input.BuyerEmail)
		buyer = user
		return err
	})
	if err := g.Wait(); err != nil {
		fail()
		return nil, err
	}

	if err := advance(EventIdentitiesResolved); err != nil {
		return nil, err
	}

	agentAddr := common.HexToAddress(agent.AccountAddress)
	sellerAddr := common.HexToAddress(seller.AccountAddress)
	buyerAddr := common.HexToAddress(buyer.AccountAddress)

	lock := s.submitLock(agent.AccountAddress)
	lock.Lock()
	defer lock.Unlock()

	// The start block is captured before the submission goes out, so a
	// confirmation mined between filter setup and broadcast is not missed.
	startBlock, err := s.ledger.BlockNumber(ctx)
	if err != nil {
		fail()
		return nil, fmt.Errorf("fetch start block: %w", err)
	}

	sub, err := s.ledger.WatchContractUpdates(ctx, agentAddr, startBlock)
	if err != nil {
		fail()
		return nil, fmt.Errorf("watch confirmations: %w", err)
	}
	defer sub.Unsubscribe()

	draft := model.ContractDraft{
		AgentAddress:    agent.AccountAddress,
		SellerAddress:   seller.AccountAddress,
		BuyerAddress:    buyer.AccountAddress,
		BuildingType:    input.BuildingType,
		BuildingName:    input.BuildingName,
		BuildingAddress: input.BuildingAddress,
		PhotoPath:       input.PhotoPath,
		ContractDate:    input.ContractDate,
		ContractType:    input.ContractType,
	}
	journalID, err := s.journal.Create(ctx, model.RegistrationJournal{
		AgentAddress: agent.AccountAddress,
		StartBlock:   startBlock,
		Draft:        draft,
	})
	if err != nil {
		fail()
		return nil, fmt.Errorf("journal registration: %w", err)
	}

	txHash, err := s.ledger.SubmitCreateContract(ctx, agentAddr, sellerAddr, buyerAddr, uint8(input.ContractType))
	if err != nil {
		// Nothing was broadcast; the journal entry is dead.
		s.markJournal(journalID, model.RegistrationStateFailed)
		fail()
		return nil, mapSubmitError(err)
	}
	if err := s.journal.SetTxHash(ctx, journalID, txHash.Hex()); err != nil {
		s.log.Warn().Err(err).Str("journal_id", journalID.String()).Msg("record tx hash failed")
	}

	if err := advance(EventTransactionAccepted); err != nil {
		return nil, err
	}

	// From here the on-chain effect is irrevocable. Failures leave the
	// journal entry SUBMITTED for the reconciliation sweep to finish.
	event, err := s.awaitConfirmation(ctx, sub)
	if err != nil {
		fail()
		return nil, err
	}

	if err := advance(EventConfirmationReceived); err != nil {
		return nil, err
	}

	saved, err := s.persistConfirmed(ctx, draft, event.ContractIndex)
	if err != nil {
		fail()
		return nil, err
	}
	s.markJournal(journalID, model.RegistrationStateCompleted)

	if err := advance(EventRecordPersisted); err != nil {
		return nil, err
	}
	s.log.Info().
		Int64("contract_index", saved.ContractIndex).
		Str("tx_hash", txHash.Hex()).
		Uint64("confirmed_block", event.BlockNumber).
		Msg("contract registered")
	return saved, nil
}

func (s *ContractService) awaitConfirmation(ctx context.Context, sub ledger.Subscription) (model.ConfirmationEvent, error) {
	timer := time.NewTimer(s.confirmTimeout)
	defer timer.Stop()

	select {
	case event, ok := <-sub.Events():
		if !ok {
			return model.ConfirmationEvent{}, fmt.Errorf("confirmation stream closed")
		}
		return event, nil
	case err := <-sub.Err():
		return model.ConfirmationEvent{}, fmt.Errorf("confirmation stream: %w", err)
	case <-timer.C:
		return model.ConfirmationEvent{}, ErrConfirmationTimeout
	case <-ctx.Done():
		return model.ConfirmationEvent{}, ctx.Err()
	}
}

// persistConfirmed writes the finalized record. A duplicate-index conflict
// means a redelivered confirmation already produced the record; the existing
// row is returned as success.
func (s *ContractService) persistConfirmed(ctx context.Context, draft model.ContractDraft, contractIndex int64) (*model.Contract, error) {
	record := model.Contract{
		ContractIndex:   contractIndex,
		AgentAddress:    draft.AgentAddress,
		SellerAddress:   draft.SellerAddress,
		BuyerAddress:    draft.BuyerAddress,
		BuildingType:    draft.BuildingType,
		BuildingName:    draft.BuildingName,
		BuildingAddress: draft.BuildingAddress,
		PhotoPath:       draft.PhotoPath,
		ContractDate:    draft.ContractDate,
		ContractType:    draft.ContractType,
	}

	saved, err := s.contracts.Create(ctx, record)
	if errors.Is(err, repository.ErrDuplicateContractIndex) {
		return s.contracts.GetByIndex(ctx, contractIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("persist contract: %w", err)
	}
	return saved, nil
}

func (s *ContractService) resolveByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, email)
		}
		return nil, err
	}
	return user, nil
}

func (s *ContractService) resolveByEthAddress(ctx context.Context, ethAddress string) (*model.User, error) {
	user, err := s.users.GetByEthAddress(ctx, ethAddress)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, ethAddress)
		}
		return nil, err
	}
	return user, nil
}

func (s *ContractService) submitLock(agentAddress string) *sync.Mutex {
	key := strings.ToLower(agentAddress)
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	lock, ok := s.submitLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.submitLocks[key] = lock
	}
	return lock
}

// markJournal is best-effort bookkeeping after the pipeline outcome is
// already decided; it must not inherit a canceled request context.
func (s *ContractService) markJournal(id uuid.UUID, state model.RegistrationState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.SetState(ctx, id, state); err != nil {
		s.log.Warn().Err(err).Str("journal_id", id.String()).Str("state", string(state)).Msg("update journal failed")
	}
}

func (s *ContractService) List(ctx context.Context, principal model.Principal) ([]model.Contract, error) {
	agent, err := s.resolveByEthAddress(ctx, principal.EthAddress)
	if err != nil {
		return nil, err
	}
	return s.contracts.ListByAgent(ctx, agent.AccountAddress)
}

func (s *ContractService) GetByIndex(ctx context.Context, contractIndex int64) (*model.Contract, error) {
	contract, err := s.contracts.GetByIndex(ctx, contractIndex)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return contract, nil
}

type ExportResult struct {
	FileName string
	Content  []byte
}

func (s *ContractService) GeneratePaper(ctx context.Context, contractIndex int64) (*ExportResult, error) {
	contract, err := s.GetByIndex(ctx, contractIndex)
	if err != nil {
		return nil, err
	}
	content, err := s.pdf.Generate(*contract)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("contract-%d.pdf", contract.ContractIndex),
		Content:  content,
	}, nil
}

func (s *ContractService) ExportLedger(ctx context.Context, principal model.Principal) (*ExportResult, error) {
	contracts, err := s.List(ctx, principal)
	if err != nil {
		return nil, err
	}
	content, err := s.excel.Generate(contracts)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("contracts-%s.xlsx", time.Now().Format("20060102")),
		Content:  content,
	}, nil
}

func validateRegisterInput(input RegisterInput) error {
	if strings.TrimSpace(input.SellerEmail) == "" {
		return fmt.Errorf("%w: seller_email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.BuyerEmail) == "" {
		return fmt.Errorf("%w: buyer_email is required", ErrInvalidInput)
	}
	if input.Principal.EthAddress == "" {
		return fmt.Errorf("%w: principal has no wallet address", ErrInvalidInput)
	}
	if !input.BuildingType.Valid() {
		return fmt.Errorf("%w: invalid building_type", ErrInvalidInput)
	}
	if !input.ContractType.Valid() {
		return fmt.Errorf("%w: invalid contract_type", ErrInvalidInput)
	}
	if input.ContractDate.IsZero() {
		return fmt.Errorf("%w: contract_date is required", ErrInvalidInput)
	}
	return nil
}

func mapSubmitError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrRejected):
		return fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	default:
		return err
	}
}
