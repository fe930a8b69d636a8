package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"meeting-room-backend/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval 轮询间隔
const DefaultPollInterval = 3 * time.Second

// Status 同步状态
type Status string

const (
	StatusLocalOnly  Status = "local-only"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusOffline    Status = "offline"
)

// Session 当前用户。没有 CanControl 时所有写操作都是空操作。
type Session struct {
	VoterID    string
	VoterLabel string
	CanControl bool
}

// Options 构造 Store 的可选项
type Options struct {
	BallotKeys   []string
	Clock        clockwork.Clock
	PollInterval time.Duration
	Reconciler   Reconciler
}

func (o Options) withDefaults() Options {
	if len(o.BallotKeys) == 0 {
		o.BallotKeys = models.DefaultBallotKeys
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Reconciler == nil {
		o.Reconciler = KeepOptimistic{}
	}
	return o
}

// View 某一时刻的只读快照
type View struct {
	State        *models.RoomState
	MyVotes      map[string]string
	MyFloorVotes map[string]string
	MyHandID     string
	Status       Status
	Connected    bool
	SyncError    error
	LastSync     time.Time
}

// Store 客户端会议室状态。每个动作先在本地生效，再异步发给后端；
// 轮询拿到的权威快照会整体替换本地状态。
type Store struct {
	session Session
	opts    Options

	mu           sync.Mutex
	state        *models.RoomState
	myVotes      map[string]string
	myFloorVotes map[string]string
	myHandID     string

	backend    Backend
	generation uint64
	cancel     context.CancelFunc
	refresh    chan struct{}
	status     Status
	connected  bool
	syncErr    error
	lastSync   time.Time

	inflight sync.WaitGroup
	changes  chan struct{}
}

// NewStore 创建本地会议室状态，初始为 local-only
func NewStore(session Session, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		session:      session,
		opts:         opts,
		state:        models.NewRoomState(opts.BallotKeys),
		myVotes:      make(map[string]string),
		myFloorVotes: make(map[string]string),
		status:       StatusLocalOnly,
		changes:      make(chan struct{}, 1),
	}
}

// Session 当前会话
func (s *Store) Session() Session {
	return s.session
}

// View 返回深拷贝的快照
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:        s.state.Clone(),
		MyVotes:      copyMap(s.myVotes),
		MyFloorVotes: copyMap(s.myFloorVotes),
		MyHandID:     s.myHandID,
		Status:       s.status,
		Connected:    s.connected,
		SyncError:    s.syncErr,
		LastSync:     s.lastSync,
	}
}

// Changes 状态变化通知，多次变化会合并成一次
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Wait 等待所有已发出的动作请求完成
func (s *Store) Wait() {
	s.inflight.Wait()
}

// ReportSyncError 记录同步错误，只用于展示
func (s *Store) ReportSyncError(err error) {
	s.mu.Lock()
	s.syncErr = err
	s.mu.Unlock()
	s.notify()
}

// Connect 连接后端并立即开始轮询。已有连接会先断开。
func (s *Store) Connect(backend Backend) {
	s.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	refresh := make(chan struct{}, 1)

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.backend = backend
	s.cancel = cancel
	s.refresh = refresh
	s.status = StatusConnecting
	s.connected = false
	s.syncErr = nil
	s.mu.Unlock()
	s.notify()

	go s.pollLoop(ctx, gen, backend, refresh)
}

// Disconnect 停止轮询，旧连接上还没返回的结果都会被忽略
func (s *Store) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	wasConnected := s.backend != nil
	s.generation++
	s.backend = nil
	s.cancel = nil
	s.refresh = nil
	s.status = StatusLocalOnly
	s.connected = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasConnected {
		s.notify()
	}
}

// Refresh 立即拉取一次权威状态。未连接时什么也不做。
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	backend, gen := s.backend, s.generation
	s.mu.Unlock()
	if backend == nil {
		return nil
	}
	return s.poll(ctx, gen, backend)
}

func (s *Store) requestRefresh() {
	s.mu.Lock()
	refresh := s.refresh
	s.mu.Unlock()
	if refresh == nil {
		return
	}
	select {
	case refresh <- struct{}{}:
	default:
	}
}

func (s *Store) pollLoop(ctx context.Context, gen uint64, backend Backend, refresh <-chan struct{}) {
	ticker := s.opts.Clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	_ = s.poll(ctx, gen, backend)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		case <-refresh:
		}
		_ = s.poll(ctx, gen, backend)
	}
}

// poll 拉取一次快照。快照替换本地的表决、举手、动议和临时表决，
// 然后按投票人ID重新推导“我的”选择。
func (s *Store) poll(ctx context.Context, gen uint64, backend Backend) error {
	state, err := backend.FetchState(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			s.mu.Unlock()
			return err
		}
		s.connected = false
		s.status = StatusOffline
		s.syncErr = err
		s.mu.Unlock()
		log.Debug().Err(err).Msg("拉取会议室状态失败")
		s.notify()
		return err
	}

	state.Normalize(s.opts.BallotKeys)
	s.state = state
	s.recomputeMine()
	s.connected = true
	s.status = StatusConnected
	s.syncErr = nil
	s.lastSync = s.opts.Clock.Now()
	s.mu.Unlock()
	s.notify()
	return nil
}

// recomputeMine 调用方持有锁
func (s *Store) recomputeMine() {
	voter := s.session.VoterID
	s.myVotes = make(map[string]string)
	for key, b := range s.state.Ballots {
		if sel, ok := b.Selections[voter]; ok {
			s.myVotes[key] = sel.Option
		}
	}
	s.myFloorVotes = make(map[string]string)
	for _, fv := range s.state.FloorVotes {
		if sel, ok := fv.Selections[voter]; ok {
			s.myFloorVotes[fv.ID] = sel.Option
		}
	}
	if s.myHandID != "" {
		found := false
		for _, h := range s.state.Hands {
			if h.ID == s.myHandID {
				found = true
				break
			}
		}
		if !found {
			s.myHandID = ""
		}
	}
}

// CastVote 以当前会话身份投票
func (s *Store) CastVote(key, option string) {
	s.CastVoteAs(key, option, s.session.VoterID, s.session.VoterLabel)
}

// CastVoteAs 在结构化表决上投票
func (s *Store) CastVoteAs(key, option, voterID, voterLabel string) {
	if !s.session.CanControl || !models.ValidOption(option) || key == "" {
		return
	}
	sel := models.VoteSelection{
		Option:     option,
		VoterID:    voterID,
		VoterLabel: voterLabel,
		UpdatedAt:  s.opts.Clock.Now().UTC(),
	}

	// 本地没有这个表决时不改本地状态，照常发给后端，由后端决定
	s.mu.Lock()
	_, err := s.state.CastVote(key, sel)
	if err != nil && !errors.Is(err, models.ErrBallotNotFound) {
		s.mu.Unlock()
		return
	}
	if err == nil {
		s.myVotes[key] = option
	}
	s.mu.Unlock()
	if err == nil {
		s.notify()
	}

	req := models.VoteRequest{Key: key, Option: option, VoterID: voterID, VoterLabel: models.TruncateLabel(voterLabel)}
	s.dispatch("vote", func(ctx context.Context, b Backend) error {
		_, err := b.CastVote(ctx, req)
		return err
	})
}

// ResetVote 清空结构化表决
func (s *Store) ResetVote(key string) {
	if !s.session.CanControl || key == "" {
		return
	}
	s.mu.Lock()
	known := s.state.ResetVote(key) == nil
	delete(s.myVotes, key)
	s.mu.Unlock()
	if known {
		s.notify()
	}

	s.dispatch("vote.reset", func(ctx context.Context, b Backend) error {
		return b.ResetVote(ctx, key)
	})
}

// RaiseHand 举手，已经举手时什么也不做
func (s *Store) RaiseHand(name string) {
	if !s.session.CanControl {
		return
	}
	now := s.opts.Clock.Now()
	hand := models.HandRaise{ID: newID(now), Name: name, Time: now.Format("15:04")}

	s.mu.Lock()
	if s.myHandID != "" {
		s.mu.Unlock()
		return
	}
	if ok, err := s.state.RaiseHand(hand); err != nil || !ok {
		s.mu.Unlock()
		return
	}
	s.myHandID = hand.ID
	s.mu.Unlock()
	s.notify()

	req := models.HandRequest{ID: hand.ID, Name: hand.Name, Time: hand.Time}
	s.dispatch("hand.raise", func(ctx context.Context, b Backend) error {
		return b.RaiseHand(ctx, req)
	})
}

// LowerMyHand 放下自己的手
func (s *Store) LowerMyHand() {
	if !s.session.CanControl {
		return
	}
	s.mu.Lock()
	id := s.myHandID
	if id == "" {
		s.mu.Unlock()
		return
	}
	s.state.LowerHand(id)
	s.myHandID = ""
	s.mu.Unlock()
	s.notify()

	s.dispatch("hand.lower", func(ctx context.Context, b Backend) error {
		return b.LowerHand(ctx, id)
	})
}

// LowerAllHands 清空发言队列
func (s *Store) LowerAllHands() {
	if !s.session.CanControl {
		return
	}
	s.mu.Lock()
	s.state.LowerAllHands()
	s.myHandID = ""
	s.mu.Unlock()
	s.notify()

	s.dispatch("hands.clear", func(ctx context.Context, b Backend) error {
		return b.LowerAllHands(ctx)
	})
}

// SubmitMotion 提交动议，返回新动议的ID；文本为空时返回空字符串
func (s *Store) SubmitMotion(author, text string) string {
	text = strings.TrimSpace(text)
	if !s.session.CanControl || text == "" {
		return ""
	}
	now := s.opts.Clock.Now()
	motion := models.Motion{ID: newID(now), Author: author, Text: text, Time: now.Format("15:04")}

	s.mu.Lock()
	if ok, err := s.state.SubmitMotion(motion); err != nil || !ok {
		s.mu.Unlock()
		return ""
	}
	s.mu.Unlock()
	s.notify()

	req := models.MotionRequest{ID: motion.ID, Author: motion.Author, Text: motion.Text, Time: motion.Time}
	s.dispatch("motion", func(ctx context.Context, b Backend) error {
		return b.SubmitMotion(ctx, req)
	})
	return motion.ID
}

// SecondMotion 附议，动议不存在时什么也不做
func (s *Store) SecondMotion(id string) {
	if !s.session.CanControl {
		return
	}
	s.mu.Lock()
	if !s.state.SecondMotion(id) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.notify()

	s.dispatch("motion.second", func(ctx context.Context, b Backend) error {
		return b.SecondMotion(ctx, id)
	})
}

// CreateFloorVote 发起临时表决，返回ID；问题为空时返回空字符串
func (s *Store) CreateFloorVote(question string) string {
	question = strings.TrimSpace(question)
	if !s.session.CanControl || question == "" {
		return ""
	}
	now := s.opts.Clock.Now()
	fv := models.FloorVote{ID: newID(now), Question: question, CreatedAt: now.UTC().Format(time.RFC3339)}

	s.mu.Lock()
	if ok, err := s.state.CreateFloorVote(fv); err != nil || !ok {
		s.mu.Unlock()
		return ""
	}
	s.mu.Unlock()
	s.notify()

	req := models.FloorVoteRequest{ID: fv.ID, Question: fv.Question, CreatedAt: fv.CreatedAt}
	s.dispatch("floor-vote", func(ctx context.Context, b Backend) error {
		_, err := b.CreateFloorVote(ctx, req)
		return err
	})
	return fv.ID
}

// CastFloorVote 以当前会话身份在临时表决上投票
func (s *Store) CastFloorVote(id, option string) {
	s.CastFloorVoteAs(id, option, s.session.VoterID, s.session.VoterLabel)
}

// CastFloorVoteAs 在临时表决上投票。本地已知且已关闭时什么也不做；
// 本地还没有这个表决时直接交给后端判断。
func (s *Store) CastFloorVoteAs(id, option, voterID, voterLabel string) {
	if !s.session.CanControl || !models.ValidOption(option) || voterID == "" {
		return
	}
	sel := models.VoteSelection{
		Option:     option,
		VoterID:    voterID,
		VoterLabel: voterLabel,
		UpdatedAt:  s.opts.Clock.Now().UTC(),
	}

	s.mu.Lock()
	if i := s.state.FindFloorVote(id); i >= 0 {
		if _, err := s.state.CastFloorVote(id, sel); err != nil {
			s.mu.Unlock()
			return
		}
	}
	s.myFloorVotes[id] = option
	s.mu.Unlock()
	s.notify()

	req := models.VoteRequest{ID: id, Option: option, VoterID: voterID, VoterLabel: models.TruncateLabel(voterLabel)}
	s.dispatch("floor-vote.cast", func(ctx context.Context, b Backend) error {
		_, err := b.CastFloorVote(ctx, req)
		return err
	})
}

// CloseFloorVote 关闭临时表决，只能关闭不能重新打开
func (s *Store) CloseFloorVote(id string) {
	if !s.session.CanControl || id == "" {
		return
	}
	s.mu.Lock()
	if i := s.state.FindFloorVote(id); i >= 0 && s.state.FloorVotes[i].Closed {
		s.mu.Unlock()
		return
	}
	s.state.CloseFloorVote(id)
	s.mu.Unlock()
	s.notify()

	s.dispatch("floor-vote.close", func(ctx context.Context, b Backend) error {
		return b.CloseFloorVote(ctx, id)
	})
}

// ResetMeeting 清空整个会议室
func (s *Store) ResetMeeting() {
	if !s.session.CanControl {
		return
	}
	s.mu.Lock()
	s.state.Reset(s.opts.BallotKeys)
	s.myVotes = make(map[string]string)
	s.myFloorVotes = make(map[string]string)
	s.myHandID = ""
	s.mu.Unlock()
	s.notify()

	s.dispatch("reset", func(ctx context.Context, b Backend) error {
		return b.Reset(ctx)
	})
}

// dispatch 把动作异步发给后端。没有连接时只在本地生效；
// 失败不回滚，交给 Reconciler 处理；连接已切换时结果被忽略。
func (s *Store) dispatch(action string, send func(ctx context.Context, b Backend) error) {
	s.mu.Lock()
	backend, gen := s.backend, s.generation
	s.mu.Unlock()
	if backend == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := send(context.Background(), backend)
		if err == nil {
			return
		}

		s.mu.Lock()
		stale := gen != s.generation
		s.mu.Unlock()
		if stale {
			return
		}
		log.Debug().Err(err).Str("action", action).Msg("同步动作失败")
		s.opts.Reconciler.ActionFailed(s, action, err)
	}()
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// newID 生成 "<毫秒时间戳>-<随机后缀>" 形式的ID
func newID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
