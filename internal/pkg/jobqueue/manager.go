package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/clickcounter"
	"github.com/snipfox/snipfox/internal/pkg/usagemeter"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	invoiceSweepTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(5),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Start counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	// Start invoice sweep - hourly check for enterprise periods without an invoice
	m.invoiceSweepTicker = time.NewTicker(time.Hour)
	m.wg.Add(1)
	go m.invoiceSweepWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.invoiceSweepTicker != nil {
		m.invoiceSweepTicker.Stop()
	}

	// Signal workers to stop. Start replaces the channel, so the closed one
	// stays readable until every worker has seen it.
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes buffered click counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := clickcounter.Flush(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// invoiceSweepWorker periodically enqueues invoice generation for the previous
// month for every active enterprise account that does not have one yet.
func (m *Manager) invoiceSweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Invoice sweep worker stopping")
			return
		case <-m.invoiceSweepTicker.C:
			if err := m.RunInvoiceSweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Invoice sweep error: %v", err)
			}
		}
	}
}

// RunInvoiceSweepOnce enqueues generate_invoice jobs for the previous month.
// The processor re-checks for existing invoices, so double enqueues are safe.
func (m *Manager) RunInvoiceSweepOnce() error {
	repos := repository.GetGlobalRepositories()

	periodStart := usagemeter.CurrentMonth(time.Now()).AddDate(0, -1, 0)

	users, err := repos.User.ListActiveEnterprise()
	if err != nil {
		return err
	}

	for _, user := range users {
		exists, err := repos.Invoice.HasMonthlyInvoice(user.ID, periodStart)
		if err != nil {
			log.Errorf("[JobQueue Manager] Invoice check failed for user %d: %v", user.ID, err)
			continue
		}
		if exists {
			continue
		}

		payload := GenerateInvoiceJobPayload{
			UserID:      user.ID,
			PeriodStart: periodStart.Format(time.RFC3339),
		}
		if _, err := m.queue.EnqueueJob(JobTypeGenerateInvoice, payload.ToMap()); err != nil {
			log.Errorf("[JobQueue Manager] Failed to enqueue invoice job for user %d: %v", user.ID, err)
		}
	}

	return nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
