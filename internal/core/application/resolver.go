package application

import (
	"context"
	"sync"
	"time"

	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	lockWatchJob   = "lock-watch"
	claimWatchJob  = "claim-watch"
	timeoutJob     = "timeout-watch"
	healthCheckJob = "health-check"
	retentionJob   = "retention-sweep"

	maxBackoff = 8
)

// ResolverOptions tunes the monitor's polling loops.
type ResolverOptions struct {
	PollInterval      time.Duration
	HealthInterval    time.Duration
	RetentionInterval time.Duration

	// Retention is how long terminal swaps and their fill history are kept
	// before the sweep removes them. Zero disables the sweep.
	Retention time.Duration

	// Credentials sign the resolver's own claims and refunds.
	Credentials map[domain.Chain]ports.Credentials

	// LowBalance triggers a health-check warning when the resolver's
	// spendable balance on a chain falls below it. Zero disables the check.
	LowBalance uint64
}

// ResolverMonitor watches every non-terminal swap and drives it to
// completion without user interaction: it funds leg B once party A locks,
// detects leg A claims, completes leg B with the revealed secret, refunds
// expired locks and reconciles persisted state with the chains after a
// restart. Transient chain errors
// back off for a bounded number of polls and never mark a swap failed.
type ResolverMonitor struct {
	repoMgr      ports.RepoManager
	adapters     map[domain.Chain]ports.ChainAdapter
	coordinator  *SwapCoordinator
	schedulerSvc ports.SchedulerService
	opts         ResolverOptions

	mtx      sync.Mutex
	running  bool
	failures map[string]int
	skipLeft map[string]int
}

// JobStatus reports a polling job's backoff state.
type JobStatus struct {
	Name     string
	Failures int
	SkipLeft int
}

// ResolverStatus is a snapshot of the monitor for the info endpoint.
type ResolverStatus struct {
	Running      bool
	PollInterval time.Duration
	Jobs         []JobStatus
}

func NewResolverMonitor(
	repoMgr ports.RepoManager,
	adapters map[domain.Chain]ports.ChainAdapter,
	coordinator *SwapCoordinator,
	schedulerSvc ports.SchedulerService,
	opts ResolverOptions,
) *ResolverMonitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = time.Minute
	}
	if opts.RetentionInterval <= 0 {
		opts.RetentionInterval = time.Hour
	}
	return &ResolverMonitor{
		repoMgr:      repoMgr,
		adapters:     adapters,
		coordinator:  coordinator,
		schedulerSvc: schedulerSvc,
		opts:         opts,
		failures:     make(map[string]int),
		skipLeft:     make(map[string]int),
	}
}

// Start reconciles persisted swaps against the chains, then registers the
// polling loops. It must be called before serving any request.
func (m *ResolverMonitor) Start(ctx context.Context) error {
	if err := m.Recover(ctx); err != nil {
		return err
	}

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{lockWatchJob, m.opts.PollInterval, m.watchLocks},
		{claimWatchJob, m.opts.PollInterval, m.watchClaims},
		{timeoutJob, m.opts.PollInterval, m.watchTimeouts},
		{healthCheckJob, m.opts.HealthInterval, m.healthCheck},
	}
	if m.opts.Retention > 0 {
		jobs = append(jobs, struct {
			name     string
			interval time.Duration
			fn       func()
		}{retentionJob, m.opts.RetentionInterval, m.sweepRetention})
	}

	for _, job := range jobs {
		if err := m.schedulerSvc.ScheduleRecurring(job.name, job.interval, job.fn); err != nil {
			return err
		}
	}
	m.schedulerSvc.Start()

	m.mtx.Lock()
	m.running = true
	m.mtx.Unlock()

	log.WithField("interval", m.opts.PollInterval).Info("resolver monitor started")
	return nil
}

// Status snapshots the monitor's jobs and their backoff state.
func (m *ResolverMonitor) Status() ResolverStatus {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	names := []string{lockWatchJob, claimWatchJob, timeoutJob, healthCheckJob}
	if m.opts.Retention > 0 {
		names = append(names, retentionJob)
	}
	jobs := make([]JobStatus, 0, len(names))
	for _, name := range names {
		jobs = append(jobs, JobStatus{
			Name:     name,
			Failures: m.failures[name],
			SkipLeft: m.skipLeft[name],
		})
	}
	return ResolverStatus{
		Running:      m.running,
		PollInterval: m.opts.PollInterval,
		Jobs:         jobs,
	}
}

func (m *ResolverMonitor) Stop() {
	m.schedulerSvc.Stop()
	m.mtx.Lock()
	m.running = false
	m.mtx.Unlock()
	log.Info("resolver monitor stopped")
}

// Recover reconciles every non-terminal swap with the observed chain state.
// It only queries and records; it never re-broadcasts a transaction whose
// outcome is unknown.
func (m *ResolverMonitor) Recover(ctx context.Context) error {
	swaps, err := m.repoMgr.Swaps().GetByPhase(
		ctx,
		domain.PhaseInitiated,
		domain.PhasePartyALocked,
		domain.PhaseBothLocked,
		domain.PhaseClaimedA,
		domain.PhaseRefundedA,
		domain.PhaseRefundedB,
	)
	if err != nil {
		return err
	}

	for i := range swaps {
		swap := swaps[i]
		if err := m.reconcile(ctx, &swap); err != nil {
			if domain.IsRetryable(err) {
				log.WithError(err).WithField("swap", swap.Id).
					Warn("chain unreachable during recovery, swap left to the watch loops")
				continue
			}
			log.WithError(err).WithField("swap", swap.Id).Error("failed to reconcile swap")
		}
	}

	log.WithField("swaps", len(swaps)).Info("recovery pass done")
	return nil
}

// reconcile folds the on-chain state of both legs into the swap record.
func (m *ResolverMonitor) reconcile(ctx context.Context, swap *domain.Swap) error {
	now := time.Now()
	dirty := false

	if swap.ContractA != nil && swap.ContractA.Status == domain.ContractPending {
		state, err := m.adapters[domain.ChainEVM].QueryStatus(ctx, swap.ContractA.ContractId)
		if err != nil {
			return err
		}
		switch {
		case state.Withdrawn:
			swap.ClaimedA("", now)
			dirty = true
		case state.Refunded:
			swap.RefundedA("", now)
			dirty = true
		}
	}
	if swap.ContractB != nil && swap.ContractB.Status == domain.ContractPending {
		state, err := m.adapters[domain.ChainUTXO].QueryStatus(ctx, swap.ContractB.ContractId)
		if err != nil {
			return err
		}
		switch {
		case state.Withdrawn:
			swap.Completed("", now)
			dirty = true
		case state.Refunded:
			swap.RefundedB("", now)
			dirty = true
		}
	}

	if !dirty {
		return nil
	}
	return m.repoMgr.Swaps().Update(ctx, *swap)
}

// watchLocks funds leg B with the resolver's own liquidity once party A has
// locked, verifies that funded contracts are still intact and detects
// out-of-band settlements the coordinator never saw.
func (m *ResolverMonitor) watchLocks() {
	if m.shouldSkip(lockWatchJob) {
		return
	}
	ctx := context.Background()

	swaps, err := m.repoMgr.Swaps().GetByPhase(
		ctx, domain.PhasePartyALocked, domain.PhaseBothLocked,
	)
	if err != nil {
		log.WithError(err).Error("lock watch failed to list swaps")
		return
	}

	var netErr bool
	for i := range swaps {
		swap := swaps[i]
		unlock := m.coordinator.locker.lock(swap.Id)
		current, err := m.repoMgr.Swaps().Get(ctx, swap.Id)
		if err == nil {
			err = m.reconcile(ctx, current)
		}
		unlock()
		if err == nil {
			err = m.fundLegB(ctx, current)
		}
		if err != nil {
			if domain.IsRetryable(err) {
				netErr = true
				continue
			}
			log.WithError(err).WithField("swap", swap.Id).Error("lock watch failed")
		}
	}
	m.recordOutcome(lockWatchJob, netErr)
}

// fundLegB locks the counterpart leg for a swap party A has funded alone.
// It needs the resolver's UTXO key; without one the counterparty has to
// lock leg B through the API.
func (m *ResolverMonitor) fundLegB(ctx context.Context, swap *domain.Swap) error {
	if swap.Phase != domain.PhasePartyALocked || swap.ContractB != nil {
		return nil
	}
	creds, ok := m.opts.Credentials[domain.ChainUTXO]
	if !ok || swap.IsExpired(m.coordinator.now()) {
		return nil
	}
	if _, err := m.coordinator.LockB(ctx, swap.Id, creds); err != nil {
		return err
	}
	log.WithField("swap", swap.Id).Info("resolver locked leg B")
	return nil
}

// watchClaims looks for the revealed preimage on leg A and completes leg B
// with it. This is the step that makes the swap atomic for the resolver.
func (m *ResolverMonitor) watchClaims() {
	if m.shouldSkip(claimWatchJob) {
		return
	}
	ctx := context.Background()

	swaps, err := m.repoMgr.Swaps().GetByPhase(
		ctx, domain.PhaseBothLocked, domain.PhaseClaimedA,
	)
	if err != nil {
		log.WithError(err).Error("claim watch failed to list swaps")
		return
	}

	var netErr bool
	for i := range swaps {
		swap := swaps[i]
		if err := m.resolveClaim(ctx, &swap); err != nil {
			if domain.IsRetryable(err) {
				netErr = true
				continue
			}
			log.WithError(err).WithField("swap", swap.Id).Error("claim watch failed")
		}
	}
	m.recordOutcome(claimWatchJob, netErr)
}

func (m *ResolverMonitor) resolveClaim(ctx context.Context, swap *domain.Swap) error {
	var preimage []byte

	if swap.Phase == domain.PhaseBothLocked {
		if swap.ContractA == nil {
			return nil
		}
		state, err := m.adapters[domain.ChainEVM].QueryStatus(ctx, swap.ContractA.ContractId)
		if err != nil {
			return err
		}
		if !state.Withdrawn {
			return nil
		}

		unlock := m.coordinator.locker.lock(swap.Id)
		current, err := m.repoMgr.Swaps().Get(ctx, swap.Id)
		if err == nil && current.Phase == domain.PhaseBothLocked {
			current.ClaimedA("", time.Now())
			err = m.repoMgr.Swaps().Update(ctx, *current)
			swap = current
		}
		unlock()
		if err != nil {
			return err
		}
		preimage = state.Preimage
	}

	if swap.Phase != domain.PhaseClaimedA {
		return nil
	}

	if len(preimage) == 0 {
		if swap.ContractA == nil {
			return nil
		}
		state, err := m.adapters[domain.ChainEVM].QueryStatus(ctx, swap.ContractA.ContractId)
		if err != nil {
			return err
		}
		preimage = state.Preimage
	}
	if len(preimage) == 0 {
		log.WithField("swap", swap.Id).Warn("leg A claimed but preimage not visible yet")
		return nil
	}

	creds, ok := m.opts.Credentials[domain.ChainUTXO]
	if !ok {
		log.WithField("swap", swap.Id).Warn("no utxo credentials, leg B claim left to the user")
		return nil
	}

	_, err := m.coordinator.ClaimB(ctx, swap.Id, preimage, creds)
	if err != nil {
		return err
	}
	log.WithField("swap", swap.Id).Info("leg B claimed by resolver")
	return nil
}

// watchTimeouts refunds expired locks and expires swaps that never funded.
func (m *ResolverMonitor) watchTimeouts() {
	if m.shouldSkip(timeoutJob) {
		return
	}
	ctx := context.Background()
	now := time.Now()

	swaps, err := m.repoMgr.Swaps().GetByPhase(
		ctx,
		domain.PhaseInitiated,
		domain.PhasePartyALocked,
		domain.PhaseBothLocked,
		domain.PhaseClaimedA,
		domain.PhaseRefundedA,
		domain.PhaseRefundedB,
	)
	if err != nil {
		log.WithError(err).Error("timeout watch failed to list swaps")
		return
	}

	var netErr bool
	for i := range swaps {
		swap := swaps[i]
		if err := m.resolveTimeout(ctx, &swap, now); err != nil {
			if domain.IsRetryable(err) {
				netErr = true
				continue
			}
			log.WithError(err).WithField("swap", swap.Id).Error("timeout watch failed")
		}
	}
	m.recordOutcome(timeoutJob, netErr)
}

func (m *ResolverMonitor) resolveTimeout(
	ctx context.Context, swap *domain.Swap, now time.Time,
) error {
	// Nothing locked: the order just lapses.
	if swap.Phase == domain.PhaseInitiated {
		if !swap.IsExpired(now) {
			return nil
		}
		unlock := m.coordinator.locker.lock(swap.Id)
		defer unlock()
		current, err := m.repoMgr.Swaps().Get(ctx, swap.Id)
		if err != nil {
			return err
		}
		if current.Phase != domain.PhaseInitiated {
			return nil
		}
		current.Expire(now)
		if err := m.repoMgr.Swaps().Update(ctx, *current); err != nil {
			return err
		}
		// nolint:all
		m.repoMgr.Secrets().Delete(ctx, swap.Id)
		log.WithField("swap", swap.Id).Info("swap expired before funding")
		return nil
	}

	// A claimed leg A makes leg B claimable with the preimage, so the claim
	// watch stays responsible until leg B's refund window opens.
	refundB := swap.ContractB != nil &&
		swap.ContractB.Status == domain.ContractPending &&
		now.Unix() >= swap.TimelockB &&
		swap.Phase != domain.PhaseClaimedA
	refundA := swap.ContractA != nil &&
		swap.ContractA.Status == domain.ContractPending &&
		now.Unix() >= swap.TimelockA

	if refundB {
		creds, ok := m.opts.Credentials[domain.ChainUTXO]
		if ok {
			if _, err := m.coordinator.RefundB(ctx, swap.Id, creds); err != nil {
				return err
			}
		}
	}
	if refundA {
		creds, ok := m.opts.Credentials[domain.ChainEVM]
		if ok {
			if _, err := m.coordinator.RefundA(ctx, swap.Id, creds); err != nil {
				return err
			}
		}
	}
	return nil
}

// healthCheck pings every chain endpoint.
func (m *ResolverMonitor) healthCheck() {
	ctx := context.Background()
	for chain, adapter := range m.adapters {
		if err := adapter.Connected(ctx); err != nil {
			log.WithError(err).WithField("chain", chain).Warn("chain endpoint unreachable")
			continue
		}
		log.WithField("chain", chain).Debug("chain endpoint healthy")

		creds, ok := m.opts.Credentials[chain]
		if !ok || m.opts.LowBalance == 0 {
			continue
		}
		balance, err := adapter.SignerBalance(ctx, creds)
		if err != nil {
			log.WithError(err).WithField("chain", chain).Warn("failed to fetch signer balance")
			continue
		}
		if balance < m.opts.LowBalance {
			log.WithFields(log.Fields{
				"chain":   chain,
				"balance": balance,
				"minimum": m.opts.LowBalance,
			}).Warn("resolver balance is low")
		}
	}
}

// sweepRetention drops terminal swaps older than the retention window,
// together with their fill history and any leftover secret.
func (m *ResolverMonitor) sweepRetention() {
	ctx := context.Background()
	cutoff := m.coordinator.now().Add(-m.opts.Retention).Unix()

	swaps, err := m.repoMgr.Swaps().GetByPhase(
		ctx, domain.PhaseCompleted, domain.PhaseRefundedA, domain.PhaseRefundedB,
		domain.PhaseExpired, domain.PhaseFailed,
	)
	if err != nil {
		log.WithError(err).Error("retention sweep failed to list swaps")
		return
	}

	removed := 0
	for i := range swaps {
		swap := swaps[i]
		if swap.UpdatedAt > cutoff {
			continue
		}
		unlock := m.coordinator.locker.lock(swap.Id)
		err := m.repoMgr.Fills().DeleteBySwap(ctx, swap.Id)
		if err == nil {
			err = m.repoMgr.Secrets().Delete(ctx, swap.Id)
		}
		if err == nil {
			err = m.repoMgr.Swaps().Delete(ctx, swap.Id)
		}
		unlock()
		if err != nil {
			log.WithError(err).WithField("swap", swap.Id).Error("retention sweep failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.WithField("swaps", removed).Info("retention sweep removed terminal swaps")
	}
}

// shouldSkip implements the bounded backoff: after consecutive network
// failures a job sits out a growing number of polls, capped at maxBackoff.
func (m *ResolverMonitor) shouldSkip(job string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.skipLeft[job] > 0 {
		m.skipLeft[job]--
		return true
	}
	return false
}

func (m *ResolverMonitor) recordOutcome(job string, netErr bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if !netErr {
		m.failures[job] = 0
		return
	}
	m.failures[job]++
	skip := 1 << (m.failures[job] - 1)
	if skip > maxBackoff {
		skip = maxBackoff
	}
	m.skipLeft[job] = skip
	log.WithFields(log.Fields{
		"job":  job,
		"skip": skip,
	}).Warn("network errors, backing off")
}
