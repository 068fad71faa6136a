package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/pricing"
)

// Step — текущий шаг диалога
type Step int

const (
	StepIdle Step = iota
	StepChoosePlatform
	StepChooseService
	StepEnterChannel
	StepPickDate
	StepPickTime
	StepPickDuration
	StepReview
	StepTopUpAmount
	StepTopUpConfirm
)

var stepNames = map[Step]string{
	StepIdle:           "idle",
	StepChoosePlatform: "platform",
	StepChooseService:  "service",
	StepEnterChannel:   "channel",
	StepPickDate:       "date",
	StepPickTime:       "time",
	StepPickDuration:   "duration",
	StepReview:         "review",
	StepTopUpAmount:    "topup",
	StepTopUpConfirm:   "topup_confirm",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

func parseStep(name string) (Step, bool) {
	for step, n := range stepNames {
		if n == name {
			return step, true
		}
	}
	return StepIdle, false
}

// Draft — данные заказа, собранные к текущему шагу
type Draft struct {
	Platform    pricing.Platform
	Service     pricing.Service
	Rate        decimal.Decimal
	Channel     string
	Date        Date
	Start       TimeOfDay
	DurationMin int
	Amount      decimal.Decimal
}

// Session — состояние диалога одного пользователя. Живёт только в памяти процесса.
type Session struct {
	UserID   int64
	Step     Step
	Draft    Draft
	Calendar Month
	// TopUpAmount — сумма пополнения, ожидающая подтверждения
	TopUpAmount decimal.Decimal
	// ResumeOrder — пополнение начато с экрана подтверждения, черновик заказа сохранён
	ResumeOrder bool

	sem        chan struct{}
	lastActive time.Time
}

// Reset возвращает сессию в исходное состояние и отбрасывает черновик
func (s *Session) Reset() {
	s.Step = StepIdle
	s.Draft = Draft{}
	s.Calendar = Month{}
	s.TopUpAmount = decimal.Zero
	s.ResumeOrder = false
}

// Store — сессии по user id. Создаётся при первом обращении, удаляется по завершении,
// отмене или по истечении ttl простоя.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{sessions: make(map[int64]*Session), ttl: ttl, now: time.Now}
}

// Acquire выдаёт сессию пользователя в монопольное пользование. В каждой сессии
// одновременно обрабатывается не больше одного шага; release обязателен.
func (st *Store) Acquire(ctx context.Context, userID int64) (*Session, func(), error) {
	for {
		st.mu.Lock()
		s, ok := st.sessions[userID]
		if !ok {
			s = &Session{UserID: userID, sem: make(chan struct{}, 1)}
			st.sessions[userID] = s
		}
		st.mu.Unlock()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}

		st.mu.Lock()
		current := st.sessions[userID]
		st.mu.Unlock()
		if current != s {
			// сессию выселили или сбросили, пока мы ждали
			<-s.sem
			continue
		}

		var once sync.Once
		release := func() {
			once.Do(func() {
				st.mu.Lock()
				s.lastActive = st.now()
				if s.Step == StepIdle && st.sessions[userID] == s {
					delete(st.sessions, userID)
				}
				st.mu.Unlock()
				<-s.sem
			})
		}
		return s, release, nil
	}
}

// Discard немедленно отбрасывает сессию пользователя
func (st *Store) Discard(userID int64) {
	st.mu.Lock()
	delete(st.sessions, userID)
	st.mu.Unlock()
}

// EvictIdle удаляет сессии, простаивающие дольше ttl. Занятые сессии не трогает.
func (st *Store) EvictIdle() int {
	deadline := st.now().Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	for id, s := range st.sessions {
		select {
		case s.sem <- struct{}{}:
		default:
			continue
		}
		if !s.lastActive.IsZero() && s.lastActive.Before(deadline) {
			delete(st.sessions, id)
			evicted++
		}
		<-s.sem
	}
	return evicted
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
