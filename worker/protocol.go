package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"chess-worker/engine"

	"github.com/rs/zerolog"
)

// Message types on the wire.
const (
	TypeCompute = "compute"
	TypeCancel  = "cancel"
	TypeResult  = "result"
	TypeError   = "error"
	TypeLog     = "log"
)

// Message is an inbound request. Optional fields are pointers so that a missing value
// can be told apart from zero.
type Message struct {
	Type               string  `json:"type"`
	RequestID          string  `json:"requestId"`
	FEN                *string `json:"fen,omitempty"`
	MinDepth           *int    `json:"minDepth,omitempty"`
	MaxDepth           *int    `json:"maxDepth,omitempty"`
	TimeLimitMs        *int    `json:"timeLimitMs,omitempty"`
	UseQuiescence      *bool   `json:"useQuiescence,omitempty"`
	QuiescenceDepth    *int    `json:"quiescenceDepth,omitempty"`
	BeamWidth          *int    `json:"beamWidth,omitempty"`
	UseAspiration      *bool   `json:"useAspiration,omitempty"`
	AspirationWindowCp *int    `json:"aspirationWindowCp,omitempty"`
	Debug              *bool   `json:"debug,omitempty"`
}

// Largest timeLimitMs that still fits a time.Duration.
const maxTimeLimitMs = math.MaxInt64 / int64(time.Millisecond)

// Request turns a compute message into a search request. Missing required fields and
// negative numbers are input errors.
func (m Message) Request() (engine.SearchRequest, error) {
	req := engine.SearchRequest{RequestID: m.RequestID}
	switch {
	case m.RequestID == "":
		return req, fmt.Errorf("%w: requestId", engine.ErrMissingField)
	case m.FEN == nil:
		return req, fmt.Errorf("%w: fen", engine.ErrMissingField)
	case m.MaxDepth == nil:
		return req, fmt.Errorf("%w: maxDepth", engine.ErrMissingField)
	case m.TimeLimitMs == nil:
		return req, fmt.Errorf("%w: timeLimitMs", engine.ErrMissingField)
	}
	for name, v := range map[string]*int{
		"minDepth":           m.MinDepth,
		"maxDepth":           m.MaxDepth,
		"timeLimitMs":        m.TimeLimitMs,
		"quiescenceDepth":    m.QuiescenceDepth,
		"beamWidth":          m.BeamWidth,
		"aspirationWindowCp": m.AspirationWindowCp,
	} {
		if v != nil && *v < 0 {
			return req, fmt.Errorf("%w: %s is negative", engine.ErrInvalidDepth, name)
		}
	}

	if int64(*m.TimeLimitMs) > maxTimeLimitMs {
		return req, fmt.Errorf("%w: timeLimitMs %d exceeds %d", engine.ErrOutOfRange, *m.TimeLimitMs, maxTimeLimitMs)
	}

	req.FEN = *m.FEN
	req.MaxDepth = *m.MaxDepth
	req.TimeLimit = time.Duration(*m.TimeLimitMs) * time.Millisecond
	req.MinDepth = intOr(m.MinDepth, 1)
	req.UseQuiescence = boolOr(m.UseQuiescence, false)
	req.QuiescenceDepth = intOr(m.QuiescenceDepth, 0)
	req.BeamWidth = intOr(m.BeamWidth, 0)
	req.UseAspiration = boolOr(m.UseAspiration, false)
	req.AspirationWindowCp = intOr(m.AspirationWindowCp, 0)
	req.Debug = boolOr(m.Debug, false)
	return req, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

type Response struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId"`
	Move      *engine.Move `json:"move,omitempty"`
	Metadata  *Metadata    `json:"metadata,omitempty"`
	Error     string       `json:"error,omitempty"`
	Log       string       `json:"log,omitempty"`
}

type Metadata struct {
	DepthReached   int                    `json:"depthReached"`
	TimeMs         int64                  `json:"timeMs"`
	SliceCount     uint64                 `json:"sliceCount"`
	Nodes          uint64                 `json:"nodes"`
	Complete       bool                   `json:"complete"`
	Source         engine.Source          `json:"source"`
	EvaluationCp   *int                   `json:"evaluationCp,omitempty"`
	MateIn         *int                   `json:"mateIn,omitempty"`
	PV             []string               `json:"pv,omitempty"`
	Terminal       engine.Terminal        `json:"terminal,omitempty"`
	TacticalSafety *engine.TacticalSafety `json:"tacticalSafety,omitempty"`
}

func ResultResponse(r *engine.SearchResult) Response {
	return Response{
		Type:      TypeResult,
		RequestID: r.RequestID,
		Move:      r.Move,
		Metadata: &Metadata{
			DepthReached:   r.DepthReached,
			TimeMs:         r.Elapsed.Milliseconds(),
			SliceCount:     r.Slices,
			Nodes:          r.Nodes,
			Complete:       r.Complete,
			Source:         r.Source,
			EvaluationCp:   r.EvaluationCp,
			MateIn:         r.MateIn,
			PV:             r.PV,
			Terminal:       r.Terminal,
			TacticalSafety: r.TacticalSafety,
		},
	}
}

func ErrorResponse(requestID string, err error) Response {
	msg := err.Error()
	if se, ok := err.(*SearchError); ok {
		msg = se.Message
	}
	return Response{Type: TypeError, RequestID: requestID, Error: msg}
}

func LogResponse(requestID, line string) Response {
	return Response{Type: TypeLog, RequestID: requestID, Log: line}
}

// Emitter delivers responses to the host. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(Response) error
}

type EmitterFunc func(Response) error

func (f EmitterFunc) Emit(r Response) error { return f(r) }

// JSONEmitter writes one JSON object per line.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

func (e *JSONEmitter) Emit(r Response) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(r)
}

// Worker binds a Router to a message stream: one worker per game or connection.
type Worker struct {
	router *Router
	out    Emitter
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewWorker(router *Router, out Emitter, logger zerolog.Logger) *Worker {
	return &Worker{router: router, out: out, logger: logger}
}

// HandleJSON decodes one inbound frame. Malformed JSON gets an error with an empty id.
func (w *Worker) HandleJSON(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		w.emit(ErrorResponse("", fmt.Errorf("malformed message: %w", err)))
		return
	}
	w.Handle(msg)
}

func (w *Worker) Handle(msg Message) {
	switch msg.Type {
	case TypeCompute:
		w.compute(msg)
	case TypeCancel:
		if !w.router.Cancel(msg.RequestID) {
			w.logger.Debug().Str("request_id", msg.RequestID).Msg("stale-cancel-ignored")
		}
	default:
		w.emit(ErrorResponse(msg.RequestID, fmt.Errorf("unknown message type %q", msg.Type)))
	}
}

func (w *Worker) compute(msg Message) {
	req, err := msg.Request()
	if err != nil {
		w.emit(ErrorResponse(msg.RequestID, err))
		return
	}

	var progress func(engine.Iteration)
	if req.Debug {
		progress = func(it engine.Iteration) {
			w.emit(LogResponse(req.RequestID, fmt.Sprintf(
				"depth %d score %d move %s nodes %d slices %d time %dms",
				it.Depth, it.Score, it.Move.String(), it.Nodes, it.Slices, it.Elapsed.Milliseconds())))
		}
	}

	outcomes := w.router.Submit(req, progress)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for o := range outcomes {
			if o.Err != nil {
				w.emit(ErrorResponse(o.Err.RequestID, o.Err))
				continue
			}
			w.emit(ResultResponse(o.Result))
		}
	}()
}

// Wait blocks until every outcome already submitted has been delivered.
func (w *Worker) Wait() { w.wg.Wait() }

// Stop cancels whatever is running.
func (w *Worker) Stop() {
	if id, ok := w.router.Active(); ok {
		w.router.Cancel(id)
	}
}

func (w *Worker) emit(r Response) {
	if err := w.out.Emit(r); err != nil {
		w.logger.Warn().Err(err).Str("type", r.Type).Msg("emit-failed")
	}
}
