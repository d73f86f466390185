package bot

import "sync"

// Dispatcher выполняет задачи одного пользователя строго по очереди,
// задачи разных пользователей выполняются параллельно.
type Dispatcher struct {
	mu      sync.Mutex
	queues  map[int64][]func()
	wg      sync.WaitGroup
	stopped bool
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{queues: make(map[int64][]func())}
}

// Submit ставит задачу в очередь пользователя. После Stop задачи не принимаются.
func (d *Dispatcher) Submit(userID int64, job func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	queue, running := d.queues[userID]
	d.queues[userID] = append(queue, job)
	if !running {
		d.wg.Add(1)
		go d.drain(userID)
	}
	return true
}

func (d *Dispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		queue[0] = nil
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		job()
	}
}

// Stop перестаёт принимать задачи и дожидается уже поставленных.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
}
