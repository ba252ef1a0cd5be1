package logging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-tablelogger/internal/models"
)

const (
	flushTimeout    = 30 * time.Second // Upper bound for storing one flush
	syncTimeout     = 10 * time.Second // Upper bound for logger.Sync
	bufferedBatches = 50               // Buffer holds this many batches before dropping records
)

// MessageWriter stores log records. LogRepository.AddMessages never fails, so neither
// does a flush.
type MessageWriter interface {
	AddMessages(ctx context.Context, records []models.LogRecord)
}

// LogProcessor buffers records from the table logger, the slog bridge and the syslog
// listener, and writes them in batches: every interval, whenever batchSize records are
// waiting, and once more on Stop.
type LogProcessor struct {
	writer    MessageWriter
	logger    *zap.Logger // diagnostic stream, never the table logger
	interval  time.Duration
	batchSize int

	mu      sync.Mutex
	buffer  []models.LogRecord
	dropped int
	flushMu sync.Mutex // serializes flushes so batches are written in order

	flushChan chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
	ticker    *time.Ticker
	isRunning bool
}

// NewLogProcessor creates a new LogProcessor instance
func NewLogProcessor(writer MessageWriter, interval time.Duration, batchSize int, logger *zap.Logger) *LogProcessor {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogProcessor{
		writer:    writer,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		flushChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

var _ RecordSink = (*LogProcessor)(nil)

// Enqueue buffers rec without blocking. When the buffer is full the record is dropped
// and counted; the count is reported with the next flush.
func (p *LogProcessor) Enqueue(rec models.LogRecord) {
	p.mu.Lock()
	if len(p.buffer) >= p.batchSize*bufferedBatches {
		p.dropped++
		p.mu.Unlock()
		return
	}
	p.buffer = append(p.buffer, rec)
	full := len(p.buffer) >= p.batchSize
	p.mu.Unlock()

	if full {
		select {
		case p.flushChan <- struct{}{}:
		default:
		}
	}
}

// Pending reports how many records wait for the next flush.
func (p *LogProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Start begins the log processing loop in a separate goroutine
func (p *LogProcessor) Start() {
	if p.isRunning {
		p.logger.Warn("Log processor already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.isRunning = true
	go p.run()
	p.logger.Info("Table log processor started", zap.Duration("interval", p.interval), zap.Int("batchSize", p.batchSize))
}

// Stop ends the loop and writes whatever is still buffered.
func (p *LogProcessor) Stop() {
	if !p.isRunning {
		p.logger.Warn("Log processor not running")
		return
	}
	p.logger.Info("Stopping table log processor...")
	close(p.stopChan)
	p.ticker.Stop()
	<-p.done
	p.isRunning = false

	p.logger.Info("Processing final log batch before shutdown...")
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	p.Flush(ctx)
	p.logger.Info("Log processor stopped.")
}

// run is the main loop that periodically flushes the buffer
func (p *LogProcessor) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ticker.C:
			p.flushWithTimeout()
		case <-p.flushChan:
			p.flushWithTimeout()
		case <-p.stopChan:
			p.logger.Debug("Received stop signal, exiting log processing loop.")
			return
		}
	}
}

func (p *LogProcessor) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	p.Flush(ctx)
}

// Flush writes every buffered record now.
func (p *LogProcessor) Flush(ctx context.Context) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	batch := p.buffer
	dropped := p.dropped
	p.buffer = nil
	p.dropped = 0
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn("Log buffer was full, records dropped", zap.Int("dropped", dropped))
	}
	if len(batch) == 0 {
		return
	}
	p.writer.AddMessages(ctx, batch)
	p.logger.Debug("Flushed log records", zap.Int("count", len(batch)))
}
