package crosschain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/skydeed/skydeed/internal/config"
	"github.com/skydeed/skydeed/internal/domain"
)

var (
	senderAddr   = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	receiverAddr = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	testMsgID    = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

func testTable() *SelectorTable {
	return NewSelectorTable(config.ChainlinkConfig{
		Selectors: map[string]uint64{
			"base":     15971525489660198786,
			"ethereum": 5009297550715157269,
			"orphan":   1234,
		},
		Senders:   map[string]string{"base": senderAddr.Hex()},
		Receivers: map[string]string{"ethereum": receiverAddr.Hex()},
	})
}

// fakeRouterProvider sender 合约交互的替身
type fakeRouterProvider struct {
	abi abi.ABI

	fee       *big.Int
	submitErr error
	receipt   *ethtypes.Receipt

	callCount   int
	submitCount int
}

func newFakeRouterProvider(t *testing.T) *fakeRouterProvider {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(SenderABI))
	require.NoError(t, err)
	return &fakeRouterProvider{
		abi: parsed,
		fee: big.NewInt(2_000_000_000_000_000), // 0.002 原生代币
		receipt: &ethtypes.Receipt{
			BlockNumber: big.NewInt(77),
			Logs: []*ethtypes.Log{
				{
					Address: senderAddr,
					Topics:  []common.Hash{messageSentTopic, testMsgID},
				},
			},
		},
	}
}

func (f *fakeRouterProvider) Account(_ context.Context) (common.Address, error) {
	return common.HexToAddress("0x0000000000000000000000000000000000000EE1"), nil
}

func (f *fakeRouterProvider) ChainID(_ context.Context) (*big.Int, error) {
	return big.NewInt(8453), nil
}

func (f *fakeRouterProvider) SwitchNetwork(_ context.Context, _ *big.Int) error { return nil }

func (f *fakeRouterProvider) AddNetwork(_ context.Context, _ config.NetworkConfig) error { return nil }

func (f *fakeRouterProvider) CallContract(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	f.callCount++
	if bytes.Equal(data[:4], f.abi.Methods["getFee"].ID) {
		return f.abi.Methods["getFee"].Outputs.Pack(f.fee)
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeRouterProvider) EstimateGas(_ context.Context, _, _ common.Address, _ []byte) (uint64, error) {
	return 150000, nil
}

func (f *fakeRouterProvider) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(40_000_000_000), nil
}

func (f *fakeRouterProvider) SubmitTransaction(_ context.Context, _ common.Address, _ []byte, _ uint64, _ *big.Int) (common.Hash, error) {
	f.submitCount++
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return common.HexToHash("0xbeef"), nil
}

func (f *fakeRouterProvider) TransactionReceipt(_ context.Context, _ common.Hash) (*ethtypes.Receipt, error) {
	return f.receipt, nil
}

// fakeChecker 可编程的投递确认替身
type fakeChecker struct {
	state MessageState
	err   error
	calls int
}

func (f *fakeChecker) MessageState(_ context.Context, _ string) (MessageState, error) {
	f.calls++
	return f.state, f.err
}

func newTestManager(t *testing.T, fp *fakeRouterProvider, checker StatusChecker) *Manager {
	t.Helper()
	store, err := OpenStore(StoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := NewManager(ManagerConfig{
		SourceChain: "base",
		Table:       testTable(),
		Store:       store,
		Provider:    fp,
		Checker:     checker,
	})
	require.NoError(t, err)
	return m
}

func samplePayload() *domain.TokenPayload {
	return &domain.TokenPayload{
		TokenID:         42,
		Name:            "Air Rights #42",
		PropertyAddress: "88 Canal St",
	}
}

// 同链转移必须在任何网络调用之前被拦下，且不留下任何记录
func TestSendPayload_SameChainBeforeNetworkCalls(t *testing.T) {
	fp := newFakeRouterProvider(t)
	m := newTestManager(t, fp, nil)

	_, err := m.SendPayload(context.Background(), "base", samplePayload(), SendOptions{})
	require.ErrorIs(t, err, ErrSameChain)
	require.Zero(t, fp.callCount)
	require.Zero(t, fp.submitCount)
	require.Empty(t, m.History())
}

// 没配签名 provider 时（只读部署），发送/估费返回类型化错误而不是崩溃，
// 也不能留下永远 pending 的记录
func TestSendPayload_NoProviderConfigured(t *testing.T) {
	store, err := OpenStore(StoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := NewManager(ManagerConfig{
		SourceChain: "base",
		Table:       testTable(),
		Store:       store,
	})
	require.NoError(t, err)

	_, err = m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
	require.ErrorIs(t, err, ErrNoProvider)
	require.Empty(t, m.History())

	_, err = m.EstimateFee(context.Background(), "ethereum", samplePayload())
	require.ErrorIs(t, err, ErrNoProvider)

	// 同链检查依旧先于 provider 检查
	_, err = m.SendPayload(context.Background(), "base", samplePayload(), SendOptions{})
	require.ErrorIs(t, err, ErrSameChain)
}

func TestSendPayload_ContractsNotDeployed(t *testing.T) {
	fp := newFakeRouterProvider(t)
	m := newTestManager(t, fp, nil)

	// orphan 有 selector 但没部署 receiver
	_, err := m.SendPayload(context.Background(), "orphan", samplePayload(), SendOptions{})
	require.ErrorIs(t, err, ErrContractsNotDeployed)
	require.Zero(t, fp.submitCount)
}

func TestSendPayload_Lifecycle(t *testing.T) {
	fp := newFakeRouterProvider(t)
	m := newTestManager(t, fp, nil)

	id, err := m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
	require.NoError(t, err)

	rec, ok := m.Record(id)
	require.True(t, ok)
	require.Equal(t, domain.TransferSent, rec.Status)
	require.Equal(t, common.HexToHash("0xbeef").Hex(), rec.TxHash)
	require.Equal(t, testMsgID.Hex(), rec.MessageID)
	require.Equal(t, "base", rec.SourceChain)
	require.Equal(t, "ethereum", rec.DestChain)
}

func TestSendPayload_FailureMarksFailed(t *testing.T) {
	fp := newFakeRouterProvider(t)
	fp.submitErr = errors.New("nonce too low")
	m := newTestManager(t, fp, nil)

	id, err := m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
	require.Error(t, err)
	require.NotEmpty(t, id)

	rec, ok := m.Record(id)
	require.True(t, ok)
	require.Equal(t, domain.TransferFailed, rec.Status)
	require.Contains(t, rec.FailReason, "nonce too low")

	// failed 是终态，确认投递必须被拒绝
	err = m.ConfirmDelivered(rec.MessageID)
	require.Error(t, err)
	rec, _ = m.Record(id)
	require.Equal(t, domain.TransferFailed, rec.Status)
}

func TestCheckStatus_DeliveredOnlyByExternalConfirmation(t *testing.T) {
	fp := newFakeRouterProvider(t)
	checker := &fakeChecker{state: MessageInFlight}
	m := newTestManager(t, fp, checker)

	id, err := m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
	require.NoError(t, err)

	// 在途：状态保持 sent
	status, err := m.CheckStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferSent, status)

	// 中继确认后才推进到 delivered
	checker.state = MessageDelivered
	status, err = m.CheckStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferDelivered, status)

	// delivered 是终态，重复查询不再迁移
	status, err = m.CheckStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferDelivered, status)
}

func TestCheckStatus_CheckerErrorKeepsSent(t *testing.T) {
	fp := newFakeRouterProvider(t)
	checker := &fakeChecker{err: errors.New("relayer down")}
	m := newTestManager(t, fp, checker)

	id, err := m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
	require.NoError(t, err)

	status, err := m.CheckStatus(context.Background(), id)
	require.Error(t, err)
	require.Equal(t, domain.TransferSent, status)
}

func TestConfirmDelivered_ByMessageID(t *testing.T) {
	fp := newFakeRouterProvider(t)
	m := newTestManager(t, fp, nil)

	id, err := m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
	require.NoError(t, err)

	require.NoError(t, m.ConfirmDelivered(testMsgID.Hex()))
	rec, _ := m.Record(id)
	require.Equal(t, domain.TransferDelivered, rec.Status)

	// 未知 messageId
	require.ErrorIs(t, m.ConfirmDelivered("0xdead"), ErrTransferNotFound)
}

func TestEstimateFee(t *testing.T) {
	fp := newFakeRouterProvider(t)
	m := newTestManager(t, fp, nil)

	fee, err := m.EstimateFee(context.Background(), "ethereum", samplePayload())
	require.NoError(t, err)
	require.Equal(t, "0.002", fee.String())

	// 同链估费同样在网络调用前被拦下
	before := fp.callCount
	_, err = m.EstimateFee(context.Background(), "base", samplePayload())
	require.ErrorIs(t, err, ErrSameChain)
	require.Equal(t, before, fp.callCount)
}

func TestHistory_CreationOrder(t *testing.T) {
	fp := newFakeRouterProvider(t)
	m := newTestManager(t, fp, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.SendPayload(context.Background(), "ethereum", samplePayload(), SendOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	history := m.History()
	require.Len(t, history, 3)
	for i, rec := range history {
		require.Equal(t, ids[i], rec.ID)
	}
}

func TestTransferStatus_NeverRegresses(t *testing.T) {
	cases := []struct {
		from, to domain.TransferStatus
		ok       bool
	}{
		{domain.TransferPending, domain.TransferSent, true},
		{domain.TransferPending, domain.TransferFailed, true},
		{domain.TransferPending, domain.TransferDelivered, false},
		{domain.TransferSent, domain.TransferDelivered, true},
		{domain.TransferSent, domain.TransferFailed, false},
		{domain.TransferSent, domain.TransferPending, false},
		{domain.TransferDelivered, domain.TransferSent, false},
		{domain.TransferFailed, domain.TransferPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}
