package realtime

type fanoutJob struct {
	conns   []*Client
	payload []byte
	exclude string // connID skipped on delivery, "" for none
}

// Fanout pushes one payload to many client send queues on a small worker
// pool, so a large channel never stalls the goroutine that triggered the
// broadcast. Slow clients are skipped, not waited on.
type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 256
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					if job.exclude != "" && c.ConnID == job.exclude {
						continue
					}
					c.Enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Client, payload []byte, excludeConnID string) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload, exclude: excludeConnID}
}

func (f *Fanout) Close() {
	close(f.jobs)
}

// LiveDelivery binds the subscription table to the fan-out pool. It is the
// constructor-injected live-delivery dependency of the router and tracker;
// deployments without a socket surface simply pass nil and degrade to
// persist-only.
type LiveDelivery struct {
	Subs   *SubTable
	Fanout *Fanout
}

func NewLiveDelivery(subs *SubTable, fanout *Fanout) *LiveDelivery {
	return &LiveDelivery{Subs: subs, Fanout: fanout}
}

func (d *LiveDelivery) Deliver(channelID string, payload []byte, excludeConnID string) {
	d.Fanout.Broadcast(d.Subs.Subscribers(channelID), payload, excludeConnID)
}
