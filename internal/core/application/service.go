package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// SwapInfo is the public view of a swap order: everything but the preimage.
type SwapInfo struct {
	Swap  domain.Swap
	Fills []domain.PartialFill
}

// ChainInfo reports the health of one chain endpoint.
type ChainInfo struct {
	Chain     string
	Connected bool
	Error     string
}

// Info is the service-level status report.
type Info struct {
	BuildInfo    BuildInfo
	SafetyMargin time.Duration
	Chains       []ChainInfo
	SwapCount    int
	Resolver     ResolverStatus
}

// Service is the single entry point for the web layer. It composes the
// coordinator, the fill ledger and the resolver monitor.
type Service struct {
	BuildInfo BuildInfo

	repoMgr     ports.RepoManager
	adapters    map[domain.Chain]ports.ChainAdapter
	coordinator *SwapCoordinator
	ledger      *PartialFillLedger
	monitor     *ResolverMonitor
}

func NewService(
	buildInfo BuildInfo,
	repoMgr ports.RepoManager,
	adapters map[domain.Chain]ports.ChainAdapter,
	coordinator *SwapCoordinator,
	ledger *PartialFillLedger,
	monitor *ResolverMonitor,
) *Service {
	return &Service{buildInfo, repoMgr, adapters, coordinator, ledger, monitor}
}

// Start launches the resolver monitor, recovery pass included.
func (s *Service) Start(ctx context.Context) error {
	return s.monitor.Start(ctx)
}

func (s *Service) Stop() {
	s.monitor.Stop()
	s.repoMgr.Close()
}

// CreateSwap opens a new swap order.
func (s *Service) CreateSwap(ctx context.Context, req SwapRequest) (*domain.Swap, error) {
	return s.coordinator.Initiate(ctx, req)
}

// GetSwap returns a swap together with its fill history.
func (s *Service) GetSwap(ctx context.Context, swapId string) (*SwapInfo, error) {
	swap, err := s.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	fills, err := s.ledger.Fills(ctx, swapId)
	if err != nil {
		return nil, err
	}
	return &SwapInfo{Swap: *swap, Fills: fills}, nil
}

// ListSwaps returns all swaps, newest first.
func (s *Service) ListSwaps(ctx context.Context) ([]domain.Swap, error) {
	swaps, err := s.repoMgr.Swaps().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(swaps, func(i, j int) bool {
		return swaps[i].CreatedAt > swaps[j].CreatedAt
	})
	return swaps, nil
}

// Fill records a fill against a swap order.
func (s *Service) Fill(
	ctx context.Context, swapId string, amount uint64, txRef string,
) (*domain.PartialFill, *domain.Swap, error) {
	return s.ledger.Fill(ctx, swapId, amount, txRef)
}

// Lock funds the next unfunded leg: leg A from the initiated phase, leg B
// once leg A is locked.
func (s *Service) Lock(
	ctx context.Context, swapId string, creds ports.Credentials,
) (*domain.Swap, error) {
	swap, err := s.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	switch swap.Phase {
	case domain.PhaseInitiated:
		return s.coordinator.LockA(ctx, swapId, creds)
	case domain.PhasePartyALocked:
		return s.coordinator.LockB(ctx, swapId, creds)
	default:
		return nil, fmt.Errorf(
			"%w: nothing to lock from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}
}

// Claim spends the next claimable leg. Leg A uses the stored secret; leg B
// needs the preimage revealed by the leg A claim, hex-encoded.
func (s *Service) Claim(
	ctx context.Context, swapId, preimageHex string, creds ports.Credentials,
) (*domain.Swap, error) {
	swap, err := s.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	switch swap.Phase {
	case domain.PhaseBothLocked:
		return s.coordinator.ClaimA(ctx, swapId, creds)
	case domain.PhaseClaimedA:
		preimage, err := hex.DecodeString(preimageHex)
		if err != nil {
			return nil, &domain.ValidationError{
				Field: "preimage", Reason: "must be hex-encoded",
			}
		}
		return s.coordinator.ClaimB(ctx, swapId, preimage, creds)
	default:
		return nil, fmt.Errorf(
			"%w: nothing to claim from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}
}

// Refund returns an expired lock on the given chain to its sender.
func (s *Service) Refund(
	ctx context.Context, swapId string, chain domain.Chain, creds ports.Credentials,
) (*domain.Swap, error) {
	if chain == domain.ChainEVM {
		return s.coordinator.RefundA(ctx, swapId, creds)
	}
	return s.coordinator.RefundB(ctx, swapId, creds)
}

// GetInfo reports build info, configuration and chain connectivity.
func (s *Service) GetInfo(ctx context.Context) (*Info, error) {
	swaps, err := s.repoMgr.Swaps().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	chains := make([]ChainInfo, 0, len(s.adapters))
	for _, chain := range []domain.Chain{domain.ChainEVM, domain.ChainUTXO} {
		adapter, ok := s.adapters[chain]
		if !ok {
			continue
		}
		info := ChainInfo{Chain: chain.String(), Connected: true}
		if err := adapter.Connected(ctx); err != nil {
			info.Connected = false
			info.Error = err.Error()
		}
		chains = append(chains, info)
	}

	return &Info{
		BuildInfo:    s.BuildInfo,
		SafetyMargin: s.coordinator.SafetyMargin(),
		Chains:       chains,
		SwapCount:    len(swaps),
		Resolver:     s.monitor.Status(),
	}, nil
}
