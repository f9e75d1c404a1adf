package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Exporter regenerates the course mirror.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// MirrorWorker re-exports the catalog on an interval, so the mirror
// converges even if a commit hook export failed.
type MirrorWorker struct {
	exporter Exporter
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

func NewMirrorWorker(exporter Exporter, interval time.Duration) *MirrorWorker {
	return &MirrorWorker{
		exporter: exporter,
		interval: interval,
	}
}

func (w *MirrorWorker) Name() string { return "mirror worker" }

func (w *MirrorWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopChan != nil {
		return
	}

	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	log.Printf("Mirror worker started with interval %v", w.interval)

	go w.run(w.stopChan, w.done)
}

func (w *MirrorWorker) Stop() {
	w.mu.Lock()
	stopChan, done := w.stopChan, w.done
	w.stopChan = nil
	w.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-done
	log.Println("Mirror worker stopped")
}

func (w *MirrorWorker) run(stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First export right away.
	w.export()

	for {
		select {
		case <-ticker.C:
			w.export()
		case <-stopChan:
			return
		}
	}
}

func (w *MirrorWorker) export() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if path, err := w.exporter.Export(ctx); err != nil {
		log.Printf("Mirror worker error: %v", err)
	} else {
		log.Printf("Mirror worker: exported catalog to %s", path)
	}
}
