package postoffice

import (
	"sync"
	"time"

	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/internal/worker"
)

var log = logging.New("postoffice")

// DefaultReapInterval is how often the background reaper sweeps closed
// mailboxes out of the routing table when callers forget to Cancel them
//.
const DefaultReapInterval = 30 * time.Second

// PostOffice is a process-wide routing map from origin-id to bounded
// mailbox. The mutex guarding the map is short-held: no suspension happens
// while it is held.
type PostOffice struct {
	worker.Worker

	mu        sync.Mutex
	mailboxes map[string]*Mailbox

	defaultMu  sync.RWMutex
	defaultBox *Mailbox

	reapInterval time.Duration
}

// New constructs a PostOffice and starts its reaper goroutine. Close stops
// the reaper; because the reaper is owned by (and torn down with) the
// PostOffice rather than holding any reference the PostOffice doesn't
// already hold, dropping the PostOffice cannot leak the reaper.
func New(reapInterval time.Duration) *PostOffice {
	if reapInterval <= 0 {
		reapInterval = DefaultReapInterval
	}
	p := &PostOffice{
		mailboxes:    make(map[string]*Mailbox),
		reapInterval: reapInterval,
	}
	p.Go(p.reap)
	return p
}

// MakeMailbox creates (or replaces) the mailbox for id with the given
// buffer size.
func (p *PostOffice) MakeMailbox(id string, buffer int) *Mailbox {
	mb := newMailbox(id, buffer)
	p.mu.Lock()
	p.mailboxes[id] = mb
	p.mu.Unlock()
	return mb
}

// Deliver routes v to the mailbox for id, falling back to the default
// mailbox if one is assigned and no specific mailbox matches. It returns
// false, and drops v, if no mailbox accepted it. Delivery to a closed
// mailbox removes its table entry and returns false.
func (p *PostOffice) Deliver(id string, v Message) bool {
	p.mu.Lock()
	mb, ok := p.mailboxes[id]
	p.mu.Unlock()

	if ok {
		if mb.tryDeliver(v) {
			return true
		}
		p.mu.Lock()
		if cur, still := p.mailboxes[id]; still && cur == mb {
			delete(p.mailboxes, id)
		}
		p.mu.Unlock()
		return false
	}

	p.defaultMu.RLock()
	def := p.defaultBox
	p.defaultMu.RUnlock()
	if def != nil {
		return def.tryDeliver(v)
	}
	return false
}

// Cancel removes and closes the mailbox for id, if any.
func (p *PostOffice) Cancel(id string) {
	p.mu.Lock()
	mb, ok := p.mailboxes[id]
	delete(p.mailboxes, id)
	p.mu.Unlock()
	if ok {
		mb.Close()
	}
}

// CancelMany cancels every id in ids.
func (p *PostOffice) CancelMany(ids []string) {
	for _, id := range ids {
		p.Cancel(id)
	}
}

// CancelAll cancels every registered mailbox.
func (p *PostOffice) CancelAll() {
	p.mu.Lock()
	all := p.mailboxes
	p.mailboxes = make(map[string]*Mailbox)
	p.mu.Unlock()
	for _, mb := range all {
		mb.Close()
	}
}

// AssignDefaultMailbox installs a mailbox that catches messages whose
// origin-id matches nothing registered.
func (p *PostOffice) AssignDefaultMailbox(buffer int) *Mailbox {
	mb := newMailbox("", buffer)
	p.defaultMu.Lock()
	p.defaultBox = mb
	p.defaultMu.Unlock()
	return mb
}

// RemoveDefaultMailbox uninstalls and closes the default mailbox, if any.
func (p *PostOffice) RemoveDefaultMailbox() {
	p.defaultMu.Lock()
	mb := p.defaultBox
	p.defaultBox = nil
	p.defaultMu.Unlock()
	if mb != nil {
		mb.Close()
	}
}

func (p *PostOffice) reap() {
	defer p.Done()
	t := time.NewTicker(p.reapInterval)
	defer t.Stop()
	for {
		select {
		case <-p.HaltCh():
			return
		case <-t.C:
			p.sweep()
		}
	}
}

func (p *PostOffice) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, mb := range p.mailboxes {
		if mb.IsClosed() {
			delete(p.mailboxes, id)
			log.Debugf("reaped closed mailbox %s", id)
		}
	}
}

// Close stops the reaper and cancels every mailbox, including the default
// one.
func (p *PostOffice) Close() {
	p.Halt()
	p.CancelAll()
	p.RemoveDefaultMailbox()
}
