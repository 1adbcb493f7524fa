package resthttpd

// workerPool runs Config.WorkerThreadCount goroutines, each looping
// on eventQueue.dequeue and driving whatever connState it receives
// through connState.serve. Grounded on §4.D: "spawn nWorkerThr detached
// workers, each looping on eventQueue.dequeue()", realized with
// goroutines joined by a sync.WaitGroup instead of OS thread joins —
// the wait-with-timeout shutdown shape is grounded on
// nabbar-golib/httpserver's ListenWaitNotify/Shutdown pair.
type workerPool struct {
	eng *Engine
	n   int
}

func newWorkerPool(eng *Engine, n int) *workerPool {
	return &workerPool{eng: eng, n: n}
}

func (p *workerPool) start() {
	for i := 0; i < p.n; i++ {
		p.eng.workersWG.Add(1)
		go p.run()
	}
}

func (p *workerPool) run() {
	defer p.eng.workersWG.Done()
	for {
		ev, ok := p.eng.queue.dequeue()
		if !ok {
			return
		}
		switch ev.kind {
		case EventShutdown:
			return
		case EventNewConnection, EventDataReady:
			p.eng.metricsSink.ConnectionServed()
			ev.conn.serve()
		}
	}
}
