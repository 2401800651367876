package studio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
)

// SaveFunc персистит полный снимок сессии.
type SaveFunc func(ctx context.Context, session domain.Session) error

// Autosaver — отложенная запись сессии. Каждое новое изменение сбрасывает
// таймер; при срабатывании пишется последний снимок целиком, поздняя запись
// выигрывает. Gate откладывает запись (мало сообщений, идёт генерация).
type Autosaver struct {
	mu      sync.Mutex
	delay   time.Duration
	save    SaveFunc
	gate    func(session domain.Session) bool
	log     zerolog.Logger
	pending map[int64]*pendingSession
	stopped bool
}

type pendingSession struct {
	timer   *time.Timer
	session domain.Session
}

// NewAutosaver создаёт планировщик с задержкой delay. gate может быть nil.
func NewAutosaver(delay time.Duration, save SaveFunc, gate func(domain.Session) bool, log zerolog.Logger) *Autosaver {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Autosaver{
		delay:   delay,
		save:    save,
		gate:    gate,
		log:     log,
		pending: make(map[int64]*pendingSession),
	}
}

// Schedule запоминает снимок и перезапускает таймер пользователя.
func (a *Autosaver) Schedule(session domain.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	userID := session.UserID
	if p, ok := a.pending[userID]; ok {
		p.session = session
		p.timer.Reset(a.delay)
		return
	}
	p := &pendingSession{session: session}
	p.timer = time.AfterFunc(a.delay, func() { a.fire(userID) })
	a.pending[userID] = p
}

func (a *Autosaver) fire(userID int64) {
	a.mu.Lock()
	p, ok := a.pending[userID]
	if !ok || a.stopped {
		a.mu.Unlock()
		return
	}
	if a.gate != nil && !a.gate(p.session) {
		// условия не выполнены, попробуем после следующей задержки
		p.timer.Reset(a.delay)
		a.mu.Unlock()
		return
	}
	session := p.session
	delete(a.pending, userID)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.save(ctx, session)
	metrics.ObserveAutosave("session", err)
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", userID).Msg("autosave: запись сессии не удалась")
	}
}

// Pending возвращает несохранённый снимок, если он есть.
func (a *Autosaver) Pending(userID int64) (domain.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[userID]; ok {
		return p.session, true
	}
	return domain.Session{}, false
}

// Flush немедленно пишет отложенный снимок, минуя gate.
func (a *Autosaver) Flush(ctx context.Context, userID int64) error {
	a.mu.Lock()
	p, ok := a.pending[userID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	p.timer.Stop()
	session := p.session
	delete(a.pending, userID)
	a.mu.Unlock()

	err := a.save(ctx, session)
	metrics.ObserveAutosave("session", err)
	return err
}

// Cancel отбрасывает отложенную запись: пользователь начал заново или ушёл.
func (a *Autosaver) Cancel(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[userID]; ok {
		p.timer.Stop()
		delete(a.pending, userID)
	}
}

// Stop останавливает все таймеры. Используется при завершении сервиса.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for userID, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, userID)
	}
}

// PatchFunc применяет частичное обновление поста.
type PatchFunc func(ctx context.Context, id string, userID int64, patch domain.PostPatch) error

// PostPatcher — отложенная частичная запись поста, независимая от автосейва
// сессии. Патчи одного поста сливаются: непустые поля позднего выигрывают.
type PostPatcher struct {
	mu      sync.Mutex
	delay   time.Duration
	apply   PatchFunc
	log     zerolog.Logger
	pending map[string]*pendingPatch
	stopped bool
}

type pendingPatch struct {
	timer  *time.Timer
	userID int64
	patch  domain.PostPatch
}

// NewPostPatcher создаёт планировщик патчей с задержкой delay.
func NewPostPatcher(delay time.Duration, apply PatchFunc, log zerolog.Logger) *PostPatcher {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &PostPatcher{
		delay:   delay,
		apply:   apply,
		log:     log,
		pending: make(map[string]*pendingPatch),
	}
}

func mergePatch(dst *domain.PostPatch, src domain.PostPatch) {
	if src.Hook != nil {
		dst.Hook = src.Hook
	}
	if src.Body != nil {
		dst.Body = src.Body
	}
	if src.CTA != nil {
		dst.CTA = src.CTA
	}
	if src.Score != nil {
		dst.Score = src.Score
	}
	if src.Status != nil {
		dst.Status = src.Status
	}
	if src.Transcript != nil {
		dst.Transcript = src.Transcript
	}
}

// Schedule добавляет патч и перезапускает таймер поста.
func (p *PostPatcher) Schedule(postID string, userID int64, patch domain.PostPatch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || postID == "" {
		return
	}
	if pending, ok := p.pending[postID]; ok {
		mergePatch(&pending.patch, patch)
		pending.timer.Reset(p.delay)
		return
	}
	pending := &pendingPatch{userID: userID, patch: patch}
	pending.timer = time.AfterFunc(p.delay, func() { p.fire(postID) })
	p.pending[postID] = pending
}

func (p *PostPatcher) fire(postID string) {
	p.mu.Lock()
	pending, ok := p.pending[postID]
	if !ok || p.stopped {
		p.mu.Unlock()
		return
	}
	delete(p.pending, postID)
	userID, patch := pending.userID, pending.patch
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := p.apply(ctx, postID, userID, patch)
	metrics.ObserveAutosave("post", err)
	if err != nil {
		p.log.Error().Err(err).Str("post_id", postID).Msg("autosave: патч поста не удался")
	}
}

// Flush немедленно применяет отложенный патч поста.
func (p *PostPatcher) Flush(ctx context.Context, postID string) error {
	p.mu.Lock()
	pending, ok := p.pending[postID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	pending.timer.Stop()
	delete(p.pending, postID)
	userID, patch := pending.userID, pending.patch
	p.mu.Unlock()

	err := p.apply(ctx, postID, userID, patch)
	metrics.ObserveAutosave("post", err)
	return err
}

// Cancel отбрасывает отложенный патч поста.
func (p *PostPatcher) Cancel(postID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pending, ok := p.pending[postID]; ok {
		pending.timer.Stop()
		delete(p.pending, postID)
	}
}

// Stop останавливает все таймеры.
func (p *PostPatcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for id, pending := range p.pending {
		pending.timer.Stop()
		delete(p.pending, id)
	}
}
