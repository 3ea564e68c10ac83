package badgerdb

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

// Secrets live in their own store under a separate directory so the
// preimages never share files or permissions with the public swap metadata.
const secretDir = "secrets"

type secretRepository struct {
	store *badgerhold.Store
}

func NewSecretRepository(baseDir string, logger badger.Logger) (domain.SecretRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, secretDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %s", err)
	}
	return &secretRepository{store}, nil
}

func (r *secretRepository) Add(ctx context.Context, swapId string, secret []byte) error {
	data := secretData{
		SwapId:   swapId,
		Preimage: hex.EncodeToString(secret),
	}
	return r.store.Insert(swapId, data)
}

func (r *secretRepository) Get(ctx context.Context, swapId string) ([]byte, error) {
	var data secretData
	err := r.store.Get(swapId, &data)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("secret for swap %s not found", swapId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	preimage, err := hex.DecodeString(data.Preimage)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored secret: %w", err)
	}
	return preimage, nil
}

func (r *secretRepository) Delete(ctx context.Context, swapId string) error {
	err := r.store.Delete(swapId, secretData{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

func (r *secretRepository) Close() {
	// nolint:all
	r.store.Close()
}

type secretData struct {
	SwapId   string
	Preimage string
}
