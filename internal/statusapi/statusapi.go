// Package statusapi exposes the orchestrator's current ProgressEvent over a
// small local HTTP/JSON endpoint, for external tooling that wants to poll
// flash progress instead of parsing console output. It is purely
// observational: a mtkflash run works identically with it disabled.
package statusapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unknown321/mediatek-flash-tool/internal/mtk"
)

// Snapshot is the JSON-serializable form of the latest mtk.ProgressEvent.
type Snapshot struct {
	Phase          string `json:"phase"`
	OperationIndex int    `json:"operation_index"`
	OperationCount int    `json:"operation_count"`
	Offset         uint64 `json:"offset"`
	Total          uint64 `json:"total"`
	Done           bool   `json:"done"`
	Error          string `json:"error,omitempty"`
}

// Server is a local, single-client status endpoint. Update is safe to call
// concurrently with requests being served.
type Server struct {
	mu  sync.Mutex
	cur Snapshot

	httpServer *http.Server
}

// New builds a Server listening on addr. Call Run to start serving.
func New(addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{}

	router := gin.New()
	router.GET("/status", func(c *gin.Context) {
		s.mu.Lock()
		snap := s.cur
		s.mu.Unlock()
		c.JSON(http.StatusOK, snap)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// Update records the latest progress event; call it from a ProgressFunc.
func (s *Server) Update(ev mtk.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Snapshot{
		Phase:          ev.Phase,
		OperationIndex: ev.OperationIndex,
		OperationCount: ev.OperationCount,
		Offset:         ev.Offset,
		Total:          ev.Total,
	}
}

// Finish records the terminal state of the run.
func (s *Server) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Done = true
	if err != nil {
		s.cur.Error = err.Error()
	}
}

// Run serves until ctx is canceled, then shuts down within 2 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
