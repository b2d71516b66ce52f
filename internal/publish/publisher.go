// Package publish fans acquired frame products out to in-process
// subscribers. It is the node's Sink implementation: the acquisition loop
// hands it point clouds and images, and it retains the latest product per
// topic and notifies live subscribers without ever blocking the caller.
package publish

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lovepark/tofnode/internal/monitoring"
	"github.com/lovepark/tofnode/internal/stream"
)

// Event is one publication notice delivered to tail subscribers. It carries
// metadata only; the product itself is retrievable from the latest-snapshot
// endpoints.
type Event struct {
	Topic   string    `json:"topic"`
	FrameID string    `json:"frame_id"`
	Seq     uint64    `json:"seq"`
	Points  int       `json:"points,omitempty"`
	Time    time.Time `json:"time"`
}

// Publisher broadcasts publication events to subscribers and keeps the most
// recent product per topic for the debug endpoints. All Publish* methods are
// non-blocking: a full event queue or a slow subscriber drops events, never
// stalls the acquisition loop.
type Publisher struct {
	eventChan    chan Event
	subscribers  map[string]chan Event
	subscriberMu sync.Mutex

	latestMu     sync.Mutex
	latestImages map[string]image.Image
	latestCloud  []stream.Point

	eventSeq        atomic.Uint64
	droppedEvents   atomic.Uint64
	subscriberCount atomic.Int32

	lastStatsMu   sync.Mutex
	lastStatsTime time.Time
	lastEventSeq  uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a Publisher. Call Start before publishing into it and
// Stop when the node shuts down.
func NewPublisher() *Publisher {
	return &Publisher{
		eventChan:    make(chan Event, 100),
		subscribers:  make(map[string]chan Event),
		latestImages: make(map[string]image.Image),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the broadcast goroutine.
func (p *Publisher) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go p.broadcastLoop()
}

// Stop halts broadcasting and closes all subscriber channels.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()

	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
	p.subscriberCount.Store(0)
}

// Subscribe registers a tail subscriber. The returned ID identifies the
// channel for Unsubscribe.
func (p *Publisher) Subscribe() (string, chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 10)
	p.subscriberMu.Lock()
	p.subscribers[id] = ch
	p.subscriberMu.Unlock()
	p.subscriberCount.Add(1)
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
		p.subscriberCount.Add(-1)
	}
}

// PublishCloud retains the latest point cloud and notifies subscribers.
func (p *Publisher) PublishCloud(frameID string, cloud []stream.Point) {
	p.latestMu.Lock()
	p.latestCloud = cloud
	p.latestMu.Unlock()
	p.emit(Event{Topic: "cloud", FrameID: frameID, Points: len(cloud)})
}

// PublishDepth retains the latest radial distance image.
func (p *Publisher) PublishDepth(frameID string, img *image.Gray16) {
	p.publishImage("depth", frameID, img)
}

// PublishAmplitude retains the latest amplitude image.
func (p *Publisher) PublishAmplitude(frameID string, img *image.Gray16) {
	p.publishImage("amplitude", frameID, img)
}

// PublishConfidence retains the latest confidence image.
func (p *Publisher) PublishConfidence(frameID string, img *image.Gray) {
	p.publishImage("confidence", frameID, img)
}

// PublishViz retains a visualization image under its topic name.
func (p *Publisher) PublishViz(name, frameID string, img image.Image) {
	p.publishImage(name, frameID, img)
}

func (p *Publisher) publishImage(topic, frameID string, img image.Image) {
	p.latestMu.Lock()
	p.latestImages[topic] = img
	p.latestMu.Unlock()
	p.emit(Event{Topic: topic, FrameID: frameID})
}

func (p *Publisher) emit(ev Event) {
	if !p.running.Load() {
		return
	}
	ev.Seq = p.eventSeq.Add(1)
	ev.Time = time.Now()

	select {
	case p.eventChan <- ev:
		p.logPeriodicStats(ev.Seq)
	default:
		dropped := p.droppedEvents.Add(1)
		monitoring.Warnf("dropped event %d on topic %s (total dropped: %d), queue full",
			ev.Seq, ev.Topic, dropped)
	}
}

// logPeriodicStats logs throughput stats every 5 seconds.
func (p *Publisher) logPeriodicStats(seq uint64) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastEventSeq = seq
		return
	}

	elapsed := now.Sub(p.lastStatsTime)
	if elapsed >= 5*time.Second {
		eventsInInterval := seq - p.lastEventSeq
		rate := float64(eventsInInterval) / elapsed.Seconds()
		monitoring.Logf("publish stats: rate=%.1f/s events=%d dropped=%d subscribers=%d",
			rate, eventsInInterval, p.droppedEvents.Load(), p.subscriberCount.Load())
		p.lastStatsTime = now
		p.lastEventSeq = seq
	}
}

// broadcastLoop distributes queued events to all subscribers.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case ev := <-p.eventChan:
			p.subscriberMu.Lock()
			for _, ch := range p.subscribers {
				select {
				case ch <- ev:
				default:
					// Slow subscriber, drop the event for it rather
					// than block the broadcast loop.
					p.droppedEvents.Add(1)
				}
			}
			p.subscriberMu.Unlock()
		}
	}
}

// LatestImage returns the most recent image published under topic, or nil.
func (p *Publisher) LatestImage(topic string) image.Image {
	p.latestMu.Lock()
	defer p.latestMu.Unlock()
	return p.latestImages[topic]
}

// LatestCloud returns the most recent point cloud, or nil.
func (p *Publisher) LatestCloud() []stream.Point {
	p.latestMu.Lock()
	defer p.latestMu.Unlock()
	return p.latestCloud
}

// Stats returns current publisher counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Events:      p.eventSeq.Load(),
		Dropped:     p.droppedEvents.Load(),
		Subscribers: p.subscriberCount.Load(),
		Running:     p.running.Load(),
	}
}

// Stats contains publisher counters.
type Stats struct {
	Events      uint64 `json:"events"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int32  `json:"subscribers"`
	Running     bool   `json:"running"`
}
