// Package chat implements the conversation state machine of the widget.
//
// All session state is owned by a single event loop started with
// Orchestrator.Run. Public methods post work to the loop and wait for the
// result; transport, timer and upload completions re-enter the loop as
// ordinary events and are discarded when they belong to a torn-down session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/chatwidget/internal/domain"
	"github.com/ashureev/chatwidget/internal/submission"
	"github.com/ashureev/chatwidget/internal/transport"
)

// Options configures an Orchestrator.
type Options struct {
	IdleTimeout  time.Duration
	Suggestions  domain.SuggestionSet
	Transport    transport.Options
	Transcript   Transcript
	Logger       *slog.Logger
	NewSessionID func() string
	Now          func() time.Time
	EventBuffer  int
}

// SubmissionResult is the outcome of an asynchronous job application.
type SubmissionResult struct {
	FormID          string
	State           domain.AffordanceState
	ResumeReference string
	Err             error
}

// Snapshot is a read-only copy of the orchestrator state.
type Snapshot struct {
	Session            domain.Session
	Connection         transport.ConnectionState
	HasTransport       bool
	Ready              bool
	Pending            int
	SuggestionsVisible bool
	Minimized          bool
	Forms              []domain.Affordance
}

// Orchestrator drives the session lifecycle.
type Orchestrator struct {
	sup        *transport.Supervisor
	timer      *SessionTimer
	adapter    *submission.Adapter
	ui         UI
	transcript Transcript
	logger     *slog.Logger
	opts       Options

	events chan func()
	done   chan struct{}

	// Loop-owned state.
	session            domain.Session
	epoch              uint64
	sessionCtx         context.Context
	sessionCancel      context.CancelFunc
	dedup              Deduplicator
	transportID        uint64
	openedID           uint64
	// pending holds outbound frames, oldest first, until the transport
	// reports them written. The first inflight of them were handed to
	// transport inflightID.
	pending            []string
	inflight           int
	inflightID         uint64
	suggestionsVisible bool
	minimized          bool
	forms              map[string]*domain.Affordance
	formOrder          []string
}

// New creates an orchestrator. Run must be called to start processing.
func New(dialer transport.Dialer, adapter *submission.Adapter, ui UI, opts Options) *Orchestrator {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if len(opts.Suggestions) == 0 {
		opts.Suggestions = domain.DefaultSuggestions
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if ui == nil {
		ui = nopUI{}
	}
	transcript := opts.Transcript
	if transcript == nil {
		transcript = nopTranscript{}
	}
	if adapter == nil {
		adapter = submission.NewAdapter(nil)
	}

	o := &Orchestrator{
		adapter:    adapter,
		ui:         ui,
		transcript: transcript,
		logger:     logger,
		opts:       opts,
		events:     make(chan func(), opts.EventBuffer),
		done:       make(chan struct{}),
		forms:      make(map[string]*domain.Affordance),
	}

	topts := opts.Transport
	if topts.Logger == nil {
		topts.Logger = logger
	}
	o.sup = transport.NewSupervisor(dialer, transport.Handlers{
		OnOpen: func(t *transport.Transport) {
			o.post(func() { o.handleOpen(t) })
		},
		OnMessage: func(t *transport.Transport, raw string) {
			o.post(func() { o.handleMessage(t, raw) })
		},
		OnSent: func(t *transport.Transport) {
			o.post(func() { o.handleSent(t) })
		},
		OnClose: func(t *transport.Transport, clean bool, err error) {
			o.post(func() { o.handleClose(t, clean, err) })
		},
	}, topts)
	o.timer = NewSessionTimer(func(gen uint64) {
		o.post(func() { o.handleExpire(gen) })
	})
	return o
}

// Run processes events until ctx is canceled. It closes the transport on exit.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("Orchestrator started")
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			o.timer.Cancel()
			o.sup.Close()
			o.cancelSession()
			o.logger.Info("Orchestrator stopped", "session_id", o.session.ID)
			return nil
		case fn := <-o.events:
			fn()
		}
	}
}

// post hands fn to the loop without waiting for it to run.
func (o *Orchestrator) post(fn func()) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.events <- fn:
		return true
	case <-o.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (o *Orchestrator) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case o.events <- func() { errc <- fn() }:
	case <-o.done:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-o.done:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open activates the widget. From Idle or Expired it starts a fresh session;
// on an active session it restores a minimized widget and re-dials a dead
// transport.
func (o *Orchestrator) Open(ctx context.Context) error {
	return o.call(ctx, func() error {
		o.minimized = false
		if o.session.IsActive() {
			o.ensureTransport()
			return nil
		}
		o.startSession()
		return nil
	})
}

// Minimize hides the widget without ending the session.
func (o *Orchestrator) Minimize(ctx context.Context) error {
	return o.call(ctx, func() error {
		o.minimized = true
		return nil
	})
}

// SendText sends user text to the bot, queueing it while the transport connects.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyMessage
	}
	return o.call(ctx, func() error {
		if !o.session.IsActive() {
			return domain.ErrSessionNotActive
		}
		o.sendUser(text)
		return nil
	})
}

// SelectSuggestion sends the literal prompt of the i-th visible suggestion.
func (o *Orchestrator) SelectSuggestion(ctx context.Context, i int) error {
	return o.call(ctx, func() error {
		if !o.session.IsActive() {
			return domain.ErrSessionNotActive
		}
		if !o.suggestionsVisible {
			return domain.ErrUnknownSuggestion
		}
		prompt, ok := o.opts.Suggestions.Prompt(i)
		if !ok {
			return fmt.Errorf("%w: index %d", domain.ErrUnknownSuggestion, i)
		}
		o.sendUser(prompt)
		return nil
	})
}

// Clear ends the conversation and returns the widget to Idle.
func (o *Orchestrator) Clear(ctx context.Context) error {
	return o.call(ctx, func() error {
		if o.session.State == domain.SessionIdle {
			o.ui.ClearDisplay()
			return nil
		}
		o.logger.Info("Session cleared", "session_id", o.session.ID)
		o.record(domain.EntrySessionCleared, "")
		o.teardown()
		o.session.Reset()
		o.ui.ClearDisplay()
		return nil
	})
}

// OpenForm renders a new form of the given kind and returns its ID.
func (o *Orchestrator) OpenForm(ctx context.Context, kind domain.SubmissionKind) (string, error) {
	if kind.Action() == "" {
		return "", domain.ErrInvalidSubmission
	}
	var formID string
	err := o.call(ctx, func() error {
		if !o.session.IsActive() {
			return domain.ErrSessionNotActive
		}
		formID = uuid.NewString()
		o.form(formID, kind)
		o.session.PendingSubmission = &kind
		return nil
	})
	return formID, err
}

// SubmitInquiry validates and sends an inquiry form. A form that was already
// submitted is never sent again.
func (o *Orchestrator) SubmitInquiry(ctx context.Context, formID string, fields domain.Fields) error {
	return o.call(ctx, func() error {
		if !o.session.IsActive() {
			return domain.ErrSessionNotActive
		}
		a := o.form(formID, domain.Inquiry)
		if a.Kind != domain.Inquiry {
			return fmt.Errorf("%w: form %s is a %s form", domain.ErrInvalidSubmission, formID, a.Kind)
		}
		if a.IsTerminal() {
			return domain.ErrAlreadySubmitted
		}

		ev, err := o.adapter.Inquiry(fields)
		if err != nil {
			o.failForm(a, domain.ErrorKindSubmission, err)
			return err
		}
		return o.sendSubmission(a, ev)
	})
}

// SubmitJobApplication uploads the resume and then sends the application.
// The returned channel yields exactly one result once the upload and send
// finish. A retry of a form whose upload already succeeded reuses the stored
// resume reference instead of uploading again.
func (o *Orchestrator) SubmitJobApplication(ctx context.Context, formID string, fields domain.Fields, resume submission.Resume) (<-chan SubmissionResult, error) {
	result := make(chan SubmissionResult, 1)
	err := o.call(ctx, func() error {
		if !o.session.IsActive() {
			return domain.ErrSessionNotActive
		}
		a := o.form(formID, domain.JobApplication)
		if a.Kind != domain.JobApplication {
			return fmt.Errorf("%w: form %s is a %s form", domain.ErrInvalidSubmission, formID, a.Kind)
		}
		switch a.State {
		case domain.AffordanceSubmitted:
			return domain.ErrAlreadySubmitted
		case domain.AffordanceUploading:
			return domain.ErrSubmissionInFlight
		}
		if err := o.adapter.ValidateJobApplication(fields); err != nil {
			o.failForm(a, domain.ErrorKindSubmission, err)
			return err
		}

		if a.ResumeReference != "" {
			err := o.sendJobApplication(a, fields)
			result <- o.result(a, err)
			return nil
		}
		if resume.Empty() {
			o.failForm(a, domain.ErrorKindUpload, domain.ErrNoFileSelected)
			return domain.ErrNoFileSelected
		}

		a.State = domain.AffordanceUploading
		a.Detail = ""
		epoch := o.epoch
		uploadCtx := o.sessionCtx
		o.logger.Info("Uploading resume", "session_id", o.session.ID, "form_id", formID)
		go func() {
			ref, err := o.adapter.Upload(uploadCtx, resume)
			if !o.post(func() { o.handleUploadDone(epoch, formID, fields, ref, err, result) }) {
				result <- SubmissionResult{FormID: formID, State: domain.AffordanceFailed, Err: domain.ErrStopped}
			}
		}()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := o.call(ctx, func() error {
		snap.Session = o.session
		if o.session.LastBotMessage != nil {
			last := *o.session.LastBotMessage
			snap.Session.LastBotMessage = &last
		}
		if o.session.PendingSubmission != nil {
			kind := *o.session.PendingSubmission
			snap.Session.PendingSubmission = &kind
		}
		if t := o.sup.Current(); t != nil && o.transportID != 0 && t.ID() == o.transportID {
			snap.HasTransport = true
			snap.Connection = t.State()
		} else {
			snap.Connection = transport.StateClosed
		}
		snap.Ready = o.transportReady()
		snap.Pending = len(o.pending)
		snap.SuggestionsVisible = o.suggestionsVisible
		snap.Minimized = o.minimized
		for _, id := range o.formOrder {
			snap.Forms = append(snap.Forms, *o.forms[id])
		}
		return nil
	})
	return snap, err
}

func (o *Orchestrator) startSession() {
	o.teardown()
	o.session = domain.Session{
		ID:        o.opts.NewSessionID(),
		State:     domain.SessionActive,
		StartedAt: o.opts.Now(),
	}
	o.sessionCtx, o.sessionCancel = context.WithCancel(context.Background())

	t := o.sup.Open(o.session.ID)
	o.transportID = t.ID()
	o.timer.Arm(o.opts.IdleTimeout)

	o.logger.Info("Session started", "session_id", o.session.ID, "transport_id", t.ID())
	o.record(domain.EntrySessionStarted, "")
}

// teardown drops everything tied to the current session and bumps the epoch
// so late completions are discarded.
func (o *Orchestrator) teardown() {
	o.epoch++
	o.timer.Cancel()
	o.sup.Close()
	o.cancelSession()
	o.dedup.Reset()
	o.transportID = 0
	o.openedID = 0
	o.pending = nil
	o.inflight = 0
	o.inflightID = 0
	o.suggestionsVisible = false
	o.forms = make(map[string]*domain.Affordance)
	o.formOrder = nil
}

func (o *Orchestrator) cancelSession() {
	if o.sessionCancel != nil {
		o.sessionCancel()
		o.sessionCancel = nil
	}
}

func (o *Orchestrator) ensureTransport() {
	t := o.sup.EnsureOpen(o.session.ID)
	if t.ID() != o.transportID {
		o.logger.Info("Reconnecting transport", "session_id", o.session.ID, "transport_id", t.ID())
		o.transportID = t.ID()
	}
}

func (o *Orchestrator) sendUser(text string) {
	o.ui.DisplayUserMessage(text)
	o.hideSuggestions()
	o.record(domain.EntryUserMessage, text)

	o.pending = append(o.pending, text)
	if o.transportReady() {
		o.flush()
	} else {
		o.ensureTransport()
	}
	o.ui.ShowTypingIndicator()
	o.timer.Reset()
}

// transportReady reports whether the current transport is open and its
// OnOpen event was already handled.
func (o *Orchestrator) transportReady() bool {
	t := o.sup.Current()
	return t != nil && t.ID() == o.transportID && t.ID() == o.openedID && t.State() == transport.StateOpen
}

// flush hands queued frames to the transport in order. Frames stay queued
// until handleSent acknowledges them. Nothing new is sent while frames handed
// to an earlier transport are unresolved, so a resend keeps its place.
func (o *Orchestrator) flush() {
	if o.inflight > 0 && o.inflightID != o.transportID {
		return
	}
	for o.inflight < len(o.pending) {
		if err := o.sup.Send(o.pending[o.inflight]); err != nil {
			if errors.Is(err, transport.ErrOutboxFull) {
				o.logger.Debug("Outbox full, waiting for writes", "session_id", o.session.ID, "inflight", o.inflight)
				return
			}
			o.logger.Warn("Failed to deliver queued message", "session_id", o.session.ID, "pending", len(o.pending), "error", err)
			o.ensureTransport()
			return
		}
		o.inflight++
		o.inflightID = o.transportID
	}
}

// handleSent drops the oldest in-flight frame once the transport wrote it.
func (o *Orchestrator) handleSent(t *transport.Transport) {
	if o.inflight == 0 || t.ID() != o.inflightID {
		return
	}
	o.pending = o.pending[1:]
	o.inflight--
	if len(o.pending) == 0 {
		o.pending = nil
	}
	if o.transportReady() {
		o.flush()
	}
}

func (o *Orchestrator) hideSuggestions() {
	if o.suggestionsVisible {
		o.suggestionsVisible = false
		o.ui.HideSuggestions()
	}
}

func (o *Orchestrator) handleOpen(t *transport.Transport) {
	if !o.session.IsActive() || t.ID() != o.transportID {
		o.logger.Debug("Discarding stale open", "transport_id", t.ID())
		return
	}
	o.openedID = t.ID()
	o.logger.Info("Transport ready", "session_id", o.session.ID, "transport_id", t.ID(), "pending", len(o.pending))
	o.flush()
}

func (o *Orchestrator) handleMessage(t *transport.Transport, raw string) {
	if !o.session.IsActive() || t.ID() != o.transportID {
		o.logger.Debug("Discarding stale message", "transport_id", t.ID())
		return
	}
	o.ui.ClearTypingIndicator()

	ev, ok := o.dedup.Accept(raw)
	if !ok {
		o.logger.Debug("Suppressed duplicate bot message", "session_id", o.session.ID)
		return
	}
	if ev.Kind == domain.InboundTyping {
		return
	}

	o.session.LastBotMessage = o.dedup.Last()
	o.ui.DisplayBotMessage(ev.Text)
	o.record(domain.EntryBotMessage, ev.Text)

	if o.session.MarkSuggestionsShown() {
		o.suggestionsVisible = true
		o.ui.ShowSuggestions(o.opts.Suggestions)
	}
}

func (o *Orchestrator) handleClose(t *transport.Transport, clean bool, err error) {
	if t.ID() == o.inflightID && o.inflight > 0 {
		// Unacknowledged frames were never written; send them again first.
		o.logger.Info("Requeued unsent messages", "session_id", o.session.ID, "transport_id", t.ID(), "count", o.inflight)
		o.inflight = 0
		o.inflightID = 0
		if t.ID() != o.transportID && o.transportReady() {
			o.flush()
		}
	}
	if t.ID() != o.transportID {
		return
	}
	if o.openedID == t.ID() {
		o.openedID = 0
	}
	if clean {
		o.logger.Info("Transport closed", "session_id", o.session.ID, "transport_id", t.ID())
		return
	}

	o.logger.Warn("Transport closed uncleanly", "session_id", o.session.ID, "transport_id", t.ID(), "error", err)
	if !o.session.IsActive() {
		return
	}
	o.ui.ClearTypingIndicator()
	if len(o.pending) > 0 {
		o.ui.ShowError(domain.ErrorKindConnection, "Connection lost. Your message will be sent when the connection is restored.")
		o.record(domain.EntryError, err.Error())
	}
}

func (o *Orchestrator) handleExpire(gen uint64) {
	if !o.session.IsActive() || gen != o.timer.Generation() {
		return
	}
	o.logger.Info("Session expired", "session_id", o.session.ID, "idle_timeout", o.opts.IdleTimeout)
	o.record(domain.EntrySessionExpired, "")

	id, started := o.session.ID, o.session.StartedAt
	o.teardown()
	o.session.Reset()
	o.session.ID = id
	o.session.StartedAt = started
	o.session.State = domain.SessionExpired
	o.minimized = false
	o.ui.ClearTypingIndicator()
	o.ui.ClearDisplay()
}

func (o *Orchestrator) handleUploadDone(epoch uint64, formID string, fields domain.Fields, ref string, err error, result chan<- SubmissionResult) {
	a, ok := o.forms[formID]
	if epoch != o.epoch || !ok || !o.session.IsActive() {
		o.logger.Info("Discarding upload completion for ended session", "form_id", formID)
		result <- SubmissionResult{FormID: formID, State: domain.AffordanceFailed, Err: domain.ErrSessionNotActive}
		return
	}
	if err != nil {
		o.failForm(a, domain.ErrorKindUpload, err)
		result <- o.result(a, err)
		return
	}

	a.ResumeReference = ref
	o.logger.Info("Resume uploaded", "session_id", o.session.ID, "form_id", formID)
	result <- o.result(a, o.sendJobApplication(a, fields))
}

func (o *Orchestrator) sendJobApplication(a *domain.Affordance, fields domain.Fields) error {
	ev, err := o.adapter.JobApplication(fields, a.ResumeReference)
	if err != nil {
		o.failForm(a, domain.ErrorKindSubmission, err)
		return err
	}
	return o.sendSubmission(a, ev)
}

// sendSubmission queues a structured event behind any pending messages on an
// open transport. Without one the form becomes retryable and a reconnect is
// started.
func (o *Orchestrator) sendSubmission(a *domain.Affordance, ev domain.OutboundEvent) error {
	frame, err := ev.Encode()
	if err != nil {
		o.failForm(a, domain.ErrorKindSubmission, err)
		return err
	}

	if !o.transportReady() {
		o.ensureTransport()
		err := fmt.Errorf("submit %s: %w", a.Kind, domain.ErrNotConnected)
		o.failForm(a, domain.ErrorKindConnection, err)
		return err
	}
	o.pending = append(o.pending, frame)
	o.flush()

	a.State = domain.AffordanceSubmitted
	a.Detail = ""
	o.session.PendingSubmission = nil
	o.timer.Reset()
	o.ui.ShowConfirmation(a.Kind, a.FormID)
	o.record(domain.EntrySubmission, a.Kind.Action())
	o.logger.Info("Submission sent", "session_id", o.session.ID, "form_id", a.FormID, "kind", a.Kind.String())
	return nil
}

// form returns the affordance for formID, registering it on first use.
func (o *Orchestrator) form(formID string, kind domain.SubmissionKind) *domain.Affordance {
	if a, ok := o.forms[formID]; ok {
		return a
	}
	a := &domain.Affordance{FormID: formID, Kind: kind, State: domain.AffordanceOpen}
	o.forms[formID] = a
	o.formOrder = append(o.formOrder, formID)
	return a
}

func (o *Orchestrator) failForm(a *domain.Affordance, kind domain.ErrorKind, err error) {
	a.State = domain.AffordanceFailed
	a.Detail = err.Error()
	o.ui.ShowError(kind, a.Detail)
	o.record(domain.EntryError, a.Detail)
	o.logger.Warn("Submission failed", "session_id", o.session.ID, "form_id", a.FormID, "kind", kind.String(), "error", err)
}

func (o *Orchestrator) result(a *domain.Affordance, err error) SubmissionResult {
	return SubmissionResult{
		FormID:          a.FormID,
		State:           a.State,
		ResumeReference: a.ResumeReference,
		Err:             err,
	}
}

func (o *Orchestrator) record(kind domain.EntryKind, text string) {
	if o.session.ID == "" {
		return
	}
	o.transcript.Record(domain.TranscriptEntry{
		SessionID: o.session.ID,
		Kind:      kind,
		Text:      text,
		CreatedAt: o.opts.Now(),
	})
}
