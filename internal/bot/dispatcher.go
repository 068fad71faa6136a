package bot

import (
	"sync"
)

// dispatcher выполняет задачи одного пользователя строго по очереди, а задачи разных
// пользователей параллельно. Воркер пользователя живёт, пока у него есть задачи.
type dispatcher struct {
	mu      sync.Mutex
	queues  map[int64]*userQueue
	limit   int
	wg      sync.WaitGroup
	onPanic func(userID int64, r interface{})
}

type userQueue struct {
	jobs []func()
}

func newDispatcher(limit int, onPanic func(userID int64, r interface{})) *dispatcher {
	return &dispatcher{queues: make(map[int64]*userQueue), limit: limit, onPanic: onPanic}
}

// Submit ставит задачу в очередь пользователя. false — очередь переполнена, задача отброшена.
func (d *dispatcher) Submit(userID int64, job func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[userID]; ok {
		if len(q.jobs) >= d.limit {
			return false
		}
		q.jobs = append(q.jobs, job)
		return true
	}
	q := &userQueue{jobs: []func(){job}}
	d.queues[userID] = q
	d.wg.Add(1)
	go d.work(userID, q)
	return true
}

func (d *dispatcher) work(userID int64, q *userQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		d.run(userID, job)
	}
}

// run изолирует панику одной задачи: воркер продолжает обрабатывать очередь
func (d *dispatcher) run(userID int64, job func()) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(userID, r)
		}
	}()
	job()
}

// Wait дожидается завершения всех поставленных задач
func (d *dispatcher) Wait() {
	d.wg.Wait()
}

func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
