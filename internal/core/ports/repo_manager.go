package ports

import "github.com/hashlocked/swapd/internal/core/domain"

type RepoManager interface {
	Swaps() domain.SwapRepository
	Fills() domain.FillRepository
	Secrets() domain.SecretRepository
	Close()
}
