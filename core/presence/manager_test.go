package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"EchoFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	target string // "broadcast" / "user:<id>" / "conn:<id>"
	evt    *Event
}

type fakeSender struct {
	mu     sync.Mutex
	binds  map[string]string
	events []sentEvent
}

func newFakeSender() *fakeSender {
	return &fakeSender{binds: make(map[string]string)}
}

func (s *fakeSender) Bind(connID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds[connID] = userID
}

func (s *fakeSender) Broadcast(evt *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{target: "broadcast", evt: evt})
}

func (s *fakeSender) ToUser(userID string, evt *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{target: "user:" + userID, evt: evt})
}

func (s *fakeSender) ToConn(connID string, evt *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{target: "conn:" + connID, evt: evt})
}

func (s *fakeSender) ofType(t EventType) []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentEvent
	for _, e := range s.events {
		if e.evt.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	failWith error
	created  []*model.Message
}

func (r *fakeMessageRepo) CreateMessage(_ context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	msg.ID = int64(len(r.created) + 1)
	msg.CreatedAt = time.Now()
	r.created = append(r.created, msg)
	return nil
}

func (r *fakeMessageRepo) GetConversation(_ context.Context, userID, peerID string, _ int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.created {
		if (m.SenderID == userID && m.ReceiverID == peerID) || (m.SenderID == peerID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

type managerFixture struct {
	manager  *Manager
	registry *Registry
	store    *fakeStore
	repo     *fakeMessageRepo
	sender   *fakeSender
}

func newManagerFixture(t *testing.T, legacyOffline bool) *managerFixture {
	t.Helper()
	registry := NewRegistry()
	store := newFakeStore()
	ledger := NewLedger(store, &fakeTrackRepo{}, 5)
	repo := &fakeMessageRepo{}
	sender := newFakeSender()
	return &managerFixture{
		manager:  NewManager(registry, ledger, repo, sender, legacyOffline),
		registry: registry,
		store:    store,
		repo:     repo,
		sender:   sender,
	}
}

func mustEvent(t *testing.T, typ EventType, payload interface{}) *Event {
	t.Helper()
	evt, err := NewEvent(typ, payload)
	require.NoError(t, err)
	return evt
}

func TestManagerConnectFlow(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtUserConnected, ConnectData{UserID: "alice"}))

	assert.Equal(t, "alice", f.sender.binds["c1"])

	// 上线事件广播给所有人
	broadcasts := f.sender.ofType(EvtUserConnected)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, "broadcast", broadcasts[0].target)

	// 快照只发给新连接
	online := f.sender.ofType(EvtUsersOnline)
	require.Len(t, online, 1)
	assert.Equal(t, "conn:c1", online[0].target)
	var users []string
	require.NoError(t, json.Unmarshal(online[0].evt.Data, &users))
	assert.Equal(t, []string{"alice"}, users)

	acts := f.sender.ofType(EvtActivities)
	require.Len(t, acts, 1)
	assert.Equal(t, "conn:c1", acts[0].target)
	var pairs []UserActivity
	require.NoError(t, json.Unmarshal(acts[0].evt.Data, &pairs))
	require.Len(t, pairs, 1)
	assert.Equal(t, "Idle", pairs[0].Activity)
}

func TestManagerConnectDoubleSerializedPayload(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	// 某些前端把 userId 直接当字符串发过来
	f.manager.Handle(ctx, "c1", &Event{
		Type: EvtUserConnected,
		Data: json.RawMessage(`"alice"`),
	})

	assert.Equal(t, "alice", f.sender.binds["c1"])
	users, _ := f.registry.Snapshot()
	assert.Equal(t, []string{"alice"}, users)
}

func TestManagerActivityUpdate(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)
	f.manager.Handle(ctx, "c1", mustEvent(t, EvtUserConnected, ConnectData{UserID: "alice"}))

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtUpdateActivity, ActivityData{
		UserID:   "alice",
		Activity: "Playing Song by Artist",
	}))

	_, activities := f.registry.Snapshot()
	assert.Equal(t, "Playing Song by Artist", activities["alice"])

	// 变更广播给所有人，包括发送方，多标签页靠它收敛
	updated := f.sender.ofType(EvtActivityUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "broadcast", updated[0].target)
	var data ActivityData
	require.NoError(t, json.Unmarshal(updated[0].evt.Data, &data))
	assert.Equal(t, "alice", data.UserID)
	assert.Equal(t, "Playing Song by Artist", data.Activity)
}

func TestManagerActivityUpdateBeforeConnectDoesNotCrash(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	// 乱序事件：注册表按未知连接静默忽略
	f.manager.Handle(ctx, "ghost", mustEvent(t, EvtUpdateActivity, ActivityData{
		UserID:   "alice",
		Activity: "Playing X by Y",
	}))

	users, _ := f.registry.Snapshot()
	assert.Empty(t, users)
}

func TestManagerRecentPlay(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtAddToRecentPlays, RecentPlayData{
		UserID: "alice",
		SongID: "t1",
	}))
	f.manager.Handle(ctx, "c1", mustEvent(t, EvtAddToRecentPlays, RecentPlayData{
		UserID: "alice",
		SongID: "t2",
	}))

	ids, _ := f.store.Get(ctx, "alice")
	assert.Equal(t, []string{"t2", "t1"}, ids)

	// 最近播放是私有副作用，不允许任何广播
	assert.Empty(t, f.sender.events)
}

func TestManagerSendMessageSuccess(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtSendMessage, SendMessageData{
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "hey",
	}))

	require.Len(t, f.repo.created, 1)
	assert.Equal(t, "hey", f.repo.created[0].Content)

	received := f.sender.ofType(EvtReceiveMessage)
	require.Len(t, received, 1)
	assert.Equal(t, "user:bob", received[0].target)

	acked := f.sender.ofType(EvtMessageSent)
	require.Len(t, acked, 1)
	assert.Equal(t, "conn:c1", acked[0].target)

	var msg model.Message
	require.NoError(t, json.Unmarshal(acked[0].evt.Data, &msg))
	assert.Equal(t, "alice", msg.SenderID)
	assert.NotZero(t, msg.ID)
}

func TestManagerSendMessagePersistFailure(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)
	f.repo.failWith = errors.New("db down")

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtSendMessage, SendMessageData{
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "hey",
	}))

	// 持久化失败只通知发送方，绝不静默丢弃
	errs := f.sender.ofType(EvtMessageError)
	require.Len(t, errs, 1)
	assert.Equal(t, "conn:c1", errs[0].target)

	assert.Empty(t, f.sender.ofType(EvtReceiveMessage))
	assert.Empty(t, f.sender.ofType(EvtMessageSent))
}

// 多标签页场景：c1、c2 同属一个用户，先后断开
// 修正后的行为是只有最后一条连接断开才广播下线
func TestManagerDisconnectMultiTab(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtUserConnected, ConnectData{UserID: "alice"}))
	f.manager.Handle(ctx, "c2", mustEvent(t, EvtUserConnected, ConnectData{UserID: "alice"}))

	f.manager.HandleDisconnect(ctx, "c1")
	assert.Empty(t, f.sender.ofType(EvtUserDisconnected), "alice still online via c2")

	f.manager.HandleDisconnect(ctx, "c2")
	gone := f.sender.ofType(EvtUserDisconnected)
	require.Len(t, gone, 1)
	var data ConnectData
	require.NoError(t, json.Unmarshal(gone[0].evt.Data, &data))
	assert.Equal(t, "alice", data.UserID)
}

func TestManagerDisconnectLegacyPolicy(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, true)

	f.manager.Handle(ctx, "c1", mustEvent(t, EvtUserConnected, ConnectData{UserID: "alice"}))
	f.manager.Handle(ctx, "c2", mustEvent(t, EvtUserConnected, ConnectData{UserID: "alice"}))

	// 兼容模式：第一条连接断开就广播下线，复刻旧行为
	f.manager.HandleDisconnect(ctx, "c1")
	assert.Len(t, f.sender.ofType(EvtUserDisconnected), 1)
}

func TestManagerDisconnectUnknownConn(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	f.manager.HandleDisconnect(ctx, "ghost")
	assert.Empty(t, f.sender.events)
}

func TestManagerMalformedPayloadIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, false)

	for _, typ := range []EventType{EvtUserConnected, EvtUpdateActivity, EvtAddToRecentPlays, EvtSendMessage} {
		f.manager.Handle(ctx, "c1", &Event{Type: typ, Data: json.RawMessage(`{not json`)})
	}
	f.manager.Handle(ctx, "c1", &Event{Type: EventType("bogus")})

	assert.Empty(t, f.sender.events)
	users, _ := f.registry.Snapshot()
	assert.Empty(t, users)
}
