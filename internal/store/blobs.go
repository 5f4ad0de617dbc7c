package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"latdyn/internal/services"
)

// Blob collections for phonon payloads.
const (
	BlobPhononDOS            = "phonon_dos_fs"
	BlobPhononBandStructure  = "phonon_bandstructure_fs"
	BlobPhononForceConstants = "phonon_force_constants_fs"
)

// PutBlob stores data under its SHA-256 digest and returns the digest.
// Storing identical content twice is a no-op.
func (s *Store) PutBlob(ctx context.Context, collection string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	_, err := s.execWithRetry(ctx,
		"INSERT OR IGNORE INTO blobs (collection, id, size, data, created_at) VALUES (?, ?, ?, ?, ?)",
		collection, id, len(data), data, formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return id, nil
}

// GetBlob returns the content stored under id.
func (s *Store) GetBlob(ctx context.Context, collection, id string) ([]byte, error) {
	ctx = ensureContext(ctx)
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM blobs WHERE collection = ? AND id = ?", collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get blob", collection+"/"+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}
