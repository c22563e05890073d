package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/heirvault/escrow-backend/interfaces"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIPFSShell struct {
	up      bool
	objects map[string][]byte
}

func (f *fakeIPFSShell) Add(r io.Reader, _ ...shell.AddOpts) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	cid := fmt.Sprintf("Qm%x", sha256.Sum256(data))
	f.objects[cid] = data
	return cid, nil
}

func (f *fakeIPFSShell) Cat(path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, errors.New("no link named " + path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeIPFSShell) IsUp() bool { return f.up }

func newTestIPFSBackend(sh ipfsShell) *IPFSBackend {
	return &IPFSBackend{
		shell: sh,
		host:  "127.0.0.1",
		port:  "5001",
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		cids:  make(map[interfaces.ContentID]string),
	}
}

func TestIPFSBackendRoundTrip(t *testing.T) {
	sh := &fakeIPFSShell{up: true, objects: make(map[string][]byte)}
	backend := newTestIPFSBackend(sh)
	ctx := context.Background()

	kit := []byte(`{"userId":"user-1","version":1}`)
	id, err := backend.Store(ctx, kit, interfaces.RecoveryKitType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(kit), id)

	fetched, err := backend.Fetch(ctx, id, interfaces.RecoveryKitType)
	require.NoError(t, err)
	assert.Equal(t, kit, fetched)

	_, err = backend.Fetch(ctx, interfaces.ComputeID([]byte("other")), interfaces.RecoveryKitType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestIPFSBackendCorruptedContent(t *testing.T) {
	sh := &fakeIPFSShell{up: true, objects: make(map[string][]byte)}
	backend := newTestIPFSBackend(sh)
	ctx := context.Background()

	kit := []byte("recovery kit payload")
	id, err := backend.Store(ctx, kit, interfaces.RecoveryKitType)
	require.NoError(t, err)

	// Corrupt the stored bytes behind the node's back. Content addressing
	// must reject a fetch whose hash no longer matches the requested ID.
	for cid := range sh.objects {
		sh.objects[cid] = []byte("tampered payload")
	}

	_, err = backend.Fetch(ctx, id, interfaces.RecoveryKitType)
	assert.ErrorIs(t, err, interfaces.ErrContentMismatch)
	assert.NotErrorIs(t, err, interfaces.ErrDecryptionFailure)
}

func TestIPFSBackendUnavailable(t *testing.T) {
	sh := &fakeIPFSShell{up: false, objects: make(map[string][]byte)}
	backend := newTestIPFSBackend(sh)
	ctx := context.Background()

	assert.False(t, backend.Available(ctx))

	kit := []byte("kit")
	id, err := backend.Store(ctx, kit, interfaces.RecoveryKitType)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	// The map entry is only written on a successful store.
	_, err = backend.Fetch(ctx, id, interfaces.RecoveryKitType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}
