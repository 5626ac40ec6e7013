package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/blockon/contracts-service/internal/model"
)

// Reconciler closes the gap between the ledger and the database after a
// partial pipeline failure: a contract confirmed on-chain whose listener
// died before persisting leaves a SUBMITTED journal entry. The sweep
// re-filters UpdateContract events from each entry's recorded start block
// and finishes the write.
type Reconciler struct {
	journal   JournalStore
	contracts ContractStore
	ledger    Ledger
	interval  time.Duration
	minAge    time.Duration
	log       zerolog.Logger
}

func NewReconciler(
	journal JournalStore,
	contracts ContractStore,
	ledgerClient Ledger,
	interval, minAge time.Duration,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		journal:   journal,
		contracts: contracts,
		ledger:    ledgerClient,
		interval:  interval,
		minAge:    minAge,
		log:       log,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info().Msg("reconciliation sweep disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}

func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	entries, err := r.journal.ListStuck(ctx, r.minAge)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	head, err := r.ledger.BlockNumber(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := r.reconcileEntry(ctx, entry, head); err != nil {
			r.log.Warn().Err(err).Str("journal_id", entry.ID.String()).Msg("reconcile entry failed")
		}
	}
	return nil
}

func (r *Reconciler) reconcileEntry(ctx context.Context, entry model.RegistrationJournal, head uint64) error {
	events, err := r.ledger.FilterContractUpdates(ctx, common.HexToAddress(entry.AgentAddress), entry.StartBlock, head)
	if err != nil {
		return err
	}

	// Events carry only the assigned index. The first one in the range not
	// yet present in the database is taken as this entry's confirmation;
	// entries are swept oldest-first so ordering matches assignment order.
	for _, event := range events {
		exists, err := r.contracts.ExistsByIndex(ctx, event.ContractIndex)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		record := model.Contract{
			ContractIndex:   event.ContractIndex,
			AgentAddress:    entry.Draft.AgentAddress,
			SellerAddress:   entry.Draft.SellerAddress,
			BuyerAddress:    entry.Draft.BuyerAddress,
			BuildingType:    entry.Draft.BuildingType,
			BuildingName:    entry.Draft.BuildingName,
			BuildingAddress: entry.Draft.BuildingAddress,
			PhotoPath:       entry.Draft.PhotoPath,
			ContractDate:    entry.Draft.ContractDate,
			ContractType:    entry.Draft.ContractType,
		}
		if _, err := r.contracts.Create(ctx, record); err != nil {
			return err
		}
		if err := r.journal.SetState(ctx, entry.ID, model.RegistrationStateCompleted); err != nil {
			return err
		}
		r.log.Info().
			Int64("contract_index", event.ContractIndex).
			Str("journal_id", entry.ID.String()).
			Msg("orphaned confirmation reconciled")
		return nil
	}
	return nil
}
