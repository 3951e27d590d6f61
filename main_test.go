package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chess-worker/engine"
	"chess-worker/worker"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog"
)

func TestProtocolLoopUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"compute","requestId":"r1","fen":"6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1","maxDepth":3,"timeLimitMs":1000}`,
		``,
		`{"type":"compute"`,
	}, "\n")

	var mu sync.Mutex
	var got []worker.Response
	out := worker.EmitterFunc(func(r worker.Response) error {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
		return nil
	})

	opts := engine.DefaultOptions()
	if err := protocolLoop(context.Background(), strings.NewReader(input), out, opts); err != nil {
		t.Fatalf("protocolLoop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected a result and an error, got %+v", got)
	}
	var result, malformed bool
	for _, r := range got {
		switch {
		case r.Type == worker.TypeResult && r.RequestID == "r1" && r.Move != nil && r.Move.String() == "a1a8":
			result = true
		case r.Type == worker.TypeError && r.RequestID == "":
			malformed = true
		}
	}
	if !result || !malformed {
		t.Fatalf("unexpected responses %+v", got)
	}
}

func TestProtocolLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := strings.NewReader(`{"type":"compute","requestId":"long","fen":"` + dragontoothmg.Startpos + `","maxDepth":30,"timeLimitMs":30000}` + "\n")
	pr := &blockingReader{r: in, release: make(chan struct{})}
	defer close(pr.release)

	done := make(chan error, 1)
	go func() {
		done <- protocolLoop(ctx, pr, worker.EmitterFunc(func(worker.Response) error { return nil }), engine.DefaultOptions())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("protocolLoop: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("protocolLoop did not stop after cancel")
	}
}

// blockingReader serves r and then blocks until release is closed, like an idle stdin.
type blockingReader struct {
	r       *strings.Reader
	release chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if b.r.Len() > 0 {
		return b.r.Read(p)
	}
	<-b.release
	return 0, context.Canceled
}

func BenchmarkSearch(b *testing.B) {
	opts := engine.DefaultOptions()
	opts.Logger = zerolog.Nop()
	router := worker.NewRouter(engine.NewController(opts), zerolog.Nop())
	for i := 0; i < b.N; i++ {
		outcome := <-router.Submit(engine.SearchRequest{
			RequestID:     "bench",
			FEN:           dragontoothmg.Startpos,
			MaxDepth:      4,
			TimeLimit:     time.Minute,
			UseQuiescence: true,
		}, nil)
		if outcome.Err != nil {
			b.Fatalf("search: %v", outcome.Err)
		}
	}
}
