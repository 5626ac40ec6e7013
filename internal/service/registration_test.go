package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockon/contracts-service/internal/config"
	"github.com/blockon/contracts-service/internal/ledger"
	"github.com/blockon/contracts-service/internal/model"
	"github.com/blockon/contracts-service/internal/repository"
)

// --- Mocks ---

type mockRegistry struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
	byEth   map[string]*model.User
	delays  map[string]time.Duration
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		byEmail: make(map[string]*model.User),
		byEth:   make(map[string]*model.User),
		delays:  make(map[string]time.Duration),
	}
}

func (m *mockRegistry) add(email, ethAddress, accountAddress string) {
	user := &model.User{
		ID:             uuid.New(),
		Email:          email,
		EthAddress:     ethAddress,
		AccountAddress: accountAddress,
	}
	m.byEmail[email] = user
	m.byEth[ethAddress] = user
}

func (m *mockRegistry) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	delay := m.delays[email]
	user, ok := m.byEmail[email]
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *mockRegistry) GetByEthAddress(ctx context.Context, ethAddress string) (*model.User, error) {
	m.mu.Lock()
	user, ok := m.byEth[ethAddress]
	m.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *mockRegistry) SearchEmails(ctx context.Context, query string, limit int) ([]string, error) {
	return nil, nil
}

type mockContractStore struct {
	mu        sync.Mutex
	records   map[int64]model.Contract
	createDup bool // force the first Create to report a duplicate index
	creates   int
}

func newMockContractStore() *mockContractStore {
	return &mockContractStore{records: make(map[int64]model.Contract)}
}

func (m *mockContractStore) Create(ctx context.Context, contract model.Contract) (*model.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createDup {
		return nil, repository.ErrDuplicateContractIndex
	}
	if _, exists := m.records[contract.ContractIndex]; exists {
		return nil, repository.ErrDuplicateContractIndex
	}
	contract.ID = uuid.New()
	contract.CreatedAt = time.Now()
	m.records[contract.ContractIndex] = contract
	return &contract, nil
}

func (m *mockContractStore) GetByIndex(ctx context.Context, contractIndex int64) (*model.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[contractIndex]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &record, nil
}

func (m *mockContractStore) ListByAgent(ctx context.Context, agentAddress string) ([]model.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Contract
	for _, record := range m.records {
		if record.AgentAddress == agentAddress {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *mockContractStore) ExistsByIndex(ctx context.Context, contractIndex int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[contractIndex]
	return ok, nil
}

func (m *mockContractStore) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

type mockJournal struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*model.RegistrationJournal
}

func newMockJournal() *mockJournal {
	return &mockJournal{entries: make(map[uuid.UUID]*model.RegistrationJournal)}
}

func (m *mockJournal) Create(ctx context.Context, entry model.RegistrationJournal) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.New()
	entry.State = model.RegistrationStateSubmitted
	m.entries[entry.ID] = &entry
	return entry.ID, nil
}

func (m *mockJournal) SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[id]; ok {
		entry.TxHash = txHash
	}
	return nil
}

func (m *mockJournal) SetState(ctx context.Context, id uuid.UUID, state model.RegistrationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[id]; ok {
		entry.State = state
	}
	return nil
}

func (m *mockJournal) ListStuck(ctx context.Context, olderThan time.Duration) ([]model.RegistrationJournal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RegistrationJournal
	for _, entry := range m.entries {
		if entry.State == model.RegistrationStateSubmitted {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (m *mockJournal) singleState(t *testing.T) model.RegistrationState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.entries, 1)
	for _, entry := range m.entries {
		return entry.State
	}
	return ""
}

type fakeSubscription struct {
	events chan model.ConfirmationEvent
	errs   chan error
}

func (s *fakeSubscription) Events() <-chan model.ConfirmationEvent { return s.events }
func (s *fakeSubscription) Err() <-chan error                      { return s.errs }
func (s *fakeSubscription) Unsubscribe()                           {}

type submittedCall struct {
	agent, seller, buyer common.Address
	contractType         uint8
}

type fakeLedger struct {
	mu            sync.Mutex
	calls         []string
	headBlock     uint64
	watchFrom     uint64
	submitErr     error
	confirmations []model.ConfirmationEvent
	confirmDelay  time.Duration
	submitted     []submittedCall
	sub           *fakeSubscription
}

func (f *fakeLedger) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLedger) BlockNumber(ctx context.Context) (uint64, error) {
	f.record("block_number")
	return f.headBlock, nil
}

func (f *fakeLedger) WatchContractUpdates(ctx context.Context, account common.Address, fromBlock uint64) (ledger.Subscription, error) {
	f.record("watch")
	f.mu.Lock()
	f.watchFrom = fromBlock
	f.sub = &fakeSubscription{
		events: make(chan model.ConfirmationEvent, 8),
		errs:   make(chan error, 1),
	}
	sub := f.sub
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeLedger) SubmitCreateContract(ctx context.Context, agent, seller, buyer common.Address, contractType uint8) (common.Hash, error) {
	f.record("submit")
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, submittedCall{agent: agent, seller: seller, buyer: buyer, contractType: contractType})
	sub := f.sub
	confirmations := f.confirmations
	delay := f.confirmDelay
	f.mu.Unlock()

	go func() {
		for _, event := range confirmations {
			if delay > 0 {
				time.Sleep(delay)
			}
			sub.events <- event
		}
	}()
	return common.HexToHash("0xabc123"), nil
}

func (f *fakeLedger) FilterContractUpdates(ctx context.Context, account common.Address, fromBlock, toBlock uint64) ([]model.ConfirmationEvent, error) {
	f.record("filter")
	return f.confirmations, nil
}

func (f *fakeLedger) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// --- Fixtures ---

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{ConfirmTimeout: 500 * time.Millisecond},
	}
}

func testInput() RegisterInput {
	return RegisterInput{
		Principal:       model.Principal{UserID: uuid.New(), EthAddress: "0xE1"},
		SellerEmail:     "seller@x.com",
		BuyerEmail:      "buyer@x.com",
		BuildingType:    model.BuildingTypeApartment,
		BuildingName:    "Riverside Tower",
		BuildingAddress: "76 Central Town Rd",
		ContractDate:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ContractType:    model.ContractTypeDepositLease,
	}
}

func newTestService(registry *mockRegistry, store *mockContractStore, journal *mockJournal, chain *fakeLedger) *ContractService {
	return NewContractService(registry, store, journal, chain, nil, nil, testConfig(), zerolog.Nop())
}

func registeredRegistry() *mockRegistry {
	registry := newMockRegistry()
	registry.add("agent@x.com", "0xE1", "0xA1")
	registry.add("seller@x.com", "0xE2", "0xB2")
	registry.add("buyer@x.com", "0xE3", "0xC3")
	return registry
}

// --- Tests ---

func TestRegisterSubmitsExactPayloadAndPersistsIndex(t *testing.T) {
	registry := registeredRegistry()
	store := newMockContractStore()
	journal := newMockJournal()
	chain := &fakeLedger{
		headBlock:     999,
		confirmations: []model.ConfirmationEvent{{ContractIndex: 7, BlockNumber: 1000}},
	}

	svc := newTestService(registry, store, journal, chain)
	contract, err := svc.Register(context.Background(), testInput())
	require.NoError(t, err)

	require.Len(t, chain.submitted, 1)
	call := chain.submitted[0]
	assert.Equal(t, common.HexToAddress("0xA1"), call.agent)
	assert.Equal(t, common.HexToAddress("0xB2"), call.seller)
	assert.Equal(t, common.HexToAddress("0xC3"), call.buyer)
	assert.Equal(t, uint8(2), call.contractType)

	assert.Equal(t, int64(7), contract.ContractIndex)
	saved, err := store.GetByIndex(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xA1").Hex(), common.HexToAddress(saved.AgentAddress).Hex())
	assert.Equal(t, model.RegistrationStateCompleted, journal.singleState(t))
}

func TestRegisterSellerNotFoundNeverSubmits(t *testing.T) {
	registry := newMockRegistry()
	registry.add("agent@x.com", "0xE1", "0xA1")
	registry.add("buyer@x.com", "0xE3", "0xC3")
	store := newMockContractStore()
	chain := &fakeLedger{headBlock: 999}

	svc := newTestService(registry, store, newMockJournal(), chain)
	_, err := svc.Register(context.Background(), testInput())

	require.ErrorIs(t, err, ErrIdentityNotFound)
	assert.Zero(t, chain.submitCount())
	assert.Zero(t, store.createCount())
}

func TestRegisterCapturesStartBlockBeforeSubmission(t *testing.T) {
	registry := registeredRegistry()
	chain := &fakeLedger{
		headBlock:     1234,
		confirmations: []model.ConfirmationEvent{{ContractIndex: 1, BlockNumber: 1235}},
	}

	svc := newTestService(registry, newMockContractStore(), newMockJournal(), chain)
	_, err := svc.Register(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"block_number", "watch", "submit"}, chain.calls)
	assert.Equal(t, uint64(1234), chain.watchFrom)
}

func TestRegisterResolutionCompletionOrderIrrelevant(t *testing.T) {
	registry := registeredRegistry()
	// Seller lookup settles last; the payload must still be complete.
	registry.delays["seller@x.com"] = 50 * time.Millisecond
	chain := &fakeLedger{
		headBlock:     10,
		confirmations: []model.ConfirmationEvent{{ContractIndex: 3, BlockNumber: 11}},
	}

	svc := newTestService(registry, newMockContractStore(), newMockJournal(), chain)
	_, err := svc.Register(context.Background(), testInput())
	require.NoError(t, err)

	require.Len(t, chain.submitted, 1)
	assert.Equal(t, common.HexToAddress("0xB2"), chain.submitted[0].seller)
	assert.Equal(t, common.HexToAddress("0xC3"), chain.submitted[0].buyer)
}

func TestRegisterDuplicateConfirmationPersistsOnce(t *testing.T) {
	registry := registeredRegistry()
	store := newMockContractStore()
	chain := &fakeLedger{
		headBlock: 999,
		confirmations: []model.ConfirmationEvent{
			{ContractIndex: 7, BlockNumber: 1000},
			{ContractIndex: 7, BlockNumber: 1000},
		},
		confirmDelay: 5 * time.Millisecond,
	}

	svc := newTestService(registry, store, newMockJournal(), chain)
	contract, err := svc.Register(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, int64(7), contract.ContractIndex)
	assert.Equal(t, 1, store.createCount())
}

func TestRegisterPersistenceConflictTreatedAsSuccess(t *testing.T) {
	registry := registeredRegistry()
	store := newMockContractStore()
	store.records[7] = model.Contract{
		ID:            uuid.New(),
		ContractIndex: 7,
		AgentAddress:  "0xA1",
	}
	store.createDup = true
	chain := &fakeLedger{
		headBlock:     999,
		confirmations: []model.ConfirmationEvent{{ContractIndex: 7, BlockNumber: 1000}},
	}

	svc := newTestService(registry, store, newMockJournal(), chain)
	contract, err := svc.Register(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, int64(7), contract.ContractIndex)
}

func TestRegisterConfirmationTimeout(t *testing.T) {
	registry := registeredRegistry()
	journal := newMockJournal()
	chain := &fakeLedger{headBlock: 999} // no confirmation ever arrives

	svc := NewContractService(
		registry, newMockContractStore(), journal, chain, nil, nil,
		&config.Config{Ledger: config.LedgerConfig{ConfirmTimeout: 30 * time.Millisecond}},
		zerolog.Nop(),
	)
	_, err := svc.Register(context.Background(), testInput())

	require.ErrorIs(t, err, ErrConfirmationTimeout)
	// The transaction may still confirm later; the journal entry stays
	// SUBMITTED so the reconciliation sweep can finish the write.
	assert.Equal(t, model.RegistrationStateSubmitted, journal.singleState(t))
}

func TestRegisterSubmissionRejected(t *testing.T) {
	registry := registeredRegistry()
	journal := newMockJournal()
	chain := &fakeLedger{headBlock: 999, submitErr: ledger.ErrRejected}

	svc := newTestService(registry, newMockContractStore(), journal, chain)
	_, err := svc.Register(context.Background(), testInput())

	require.ErrorIs(t, err, ErrSubmissionRejected)
	assert.Equal(t, model.RegistrationStateFailed, journal.singleState(t))
}

func TestRegisterInsufficientFunds(t *testing.T) {
	registry := registeredRegistry()
	chain := &fakeLedger{headBlock: 999, submitErr: ledger.ErrInsufficientFunds}

	svc := newTestService(registry, newMockContractStore(), newMockJournal(), chain)
	_, err := svc.Register(context.Background(), testInput())
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newTestService(registeredRegistry(), newMockContractStore(), newMockJournal(), &fakeLedger{})

	input := testInput()
	input.SellerEmail = ""
	_, err := svc.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidInput)

	input = testInput()
	input.ContractType = 9
	_, err = svc.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidInput)

	input = testInput()
	input.BuildingType = "CASTLE"
	_, err = svc.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
