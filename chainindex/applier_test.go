package chainindex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/eventbus"
	"github.com/zencash/chainindex/store"
)

type recordingSerialHandler struct {
	name  string
	key   []byte
	value []byte
	err   error
}

func (h *recordingSerialHandler) Name() string           { return h.name }
func (h *recordingSerialHandler) Dependencies() []string { return nil }
func (h *recordingSerialHandler) Start() error           { return nil }
func (h *recordingSerialHandler) Stop() error            { return nil }
func (h *recordingSerialHandler) HandleBlock(block *chaintypes.Block, dir chaintypes.Direction) ([]store.Op, error) {
	if h.err != nil {
		return nil, h.err
	}
	return []store.Op{store.Put(h.key, h.value)}, nil
}

type recordingConcurrentHandler struct {
	name  string
	key   []byte
	value []byte
	err   error
}

func (h *recordingConcurrentHandler) Name() string           { return h.name }
func (h *recordingConcurrentHandler) Dependencies() []string { return nil }
func (h *recordingConcurrentHandler) Start() error           { return nil }
func (h *recordingConcurrentHandler) Stop() error            { return nil }
func (h *recordingConcurrentHandler) HandleBlockConcurrent(block *chaintypes.Block, dir chaintypes.Direction) ([]store.Op, error) {
	if h.err != nil {
		return nil, h.err
	}
	return []store.Op{store.Put(h.key, h.value)}, nil
}

func genesisBlock() *chaintypes.Block {
	return &chaintypes.Block{Hash: chaintypes.BytesToHash([]byte("genesis")), Height: 0}
}

func childBlock(prev *chaintypes.Block) *chaintypes.Block {
	return &chaintypes.Block{
		Hash:     chaintypes.BytesToHash([]byte("child-of-" + prev.Hash.String())),
		PrevHash: prev.Hash,
		Height:   prev.Height + 1,
	}
}

func TestApplierConnectCommitsHandlerOpsAndTip(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	serial := &recordingSerialHandler{name: "serial", key: []byte{0x01, 0x00, 's'}, value: []byte("v1")}
	concurrent := &recordingConcurrentHandler{name: "concurrent", key: []byte{0x01, 0x00, 'c'}, value: []byte("v2")}
	a := NewApplier(db, []Service{serial, concurrent}, tips, eventbus.New())

	g := genesisBlock()
	require.NoError(t, a.Apply(g, chaintypes.Connect))

	tip, ok, err := tips.Load(SerialTip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, g.Hash, tip.Hash)
	require.Equal(t, g.Height, tip.Height)

	v, err := db.Get(serial.key)
	require.NoError(t, err)
	require.Equal(t, serial.value, v)
	v, err = db.Get(concurrent.key)
	require.NoError(t, err)
	require.Equal(t, concurrent.value, v)
}

func TestApplierConcurrentHandlerFailureCommitsNothing(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	serial := &recordingSerialHandler{name: "serial", key: []byte{0x01, 0x00, 's'}, value: []byte("v1")}
	concurrent := &recordingConcurrentHandler{name: "concurrent", err: errors.New("boom")}
	a := NewApplier(db, []Service{serial, concurrent}, tips, nil)

	err := a.Apply(genesisBlock(), chaintypes.Connect)
	require.ErrorIs(t, err, ErrHandlerFailure)

	_, err = db.Get(serial.key)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, ok, err := tips.Load(SerialTip)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplierSerialHandlerFailureCommitsNothing(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	serial := &recordingSerialHandler{name: "serial", err: errors.New("boom")}
	a := NewApplier(db, []Service{serial}, tips, nil)

	err := a.Apply(genesisBlock(), chaintypes.Connect)
	require.ErrorIs(t, err, ErrHandlerFailure)

	_, ok, err := tips.Load(SerialTip)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplierRejectsNonExtendingConnect(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	a := NewApplier(db, nil, tips, nil)

	g := genesisBlock()
	require.NoError(t, a.Apply(g, chaintypes.Connect))

	stray := &chaintypes.Block{Hash: chaintypes.BytesToHash([]byte("stray")), PrevHash: chaintypes.BytesToHash([]byte("not-genesis")), Height: 1}
	err := a.Apply(stray, chaintypes.Connect)
	require.Error(t, err)

	tip, _, err := tips.Load(SerialTip)
	require.NoError(t, err)
	require.Equal(t, g.Hash, tip.Hash)
}

func TestApplierDisconnectRewindsTip(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	a := NewApplier(db, nil, tips, nil)

	g := genesisBlock()
	c := childBlock(g)
	require.NoError(t, a.Apply(g, chaintypes.Connect))
	require.NoError(t, a.Apply(c, chaintypes.Connect))

	require.NoError(t, a.Apply(c, chaintypes.Disconnect))

	tip, ok, err := tips.Load(SerialTip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, g.Hash, tip.Hash)
	require.Equal(t, g.Height, tip.Height)
}

func TestApplierRejectsDisconnectingNonTip(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	a := NewApplier(db, nil, tips, nil)

	g := genesisBlock()
	require.NoError(t, a.Apply(g, chaintypes.Connect))

	notTip := &chaintypes.Block{Hash: chaintypes.BytesToHash([]byte("someone-else")), Height: 0}
	err := a.Apply(notTip, chaintypes.Disconnect)
	require.Error(t, err)
}
