package comm

import (
	"fmt"
	"sync"
)

// mailboxDepth bounds the messages queued per (source, dest, tag) before a
// sender blocks.
const mailboxDepth = 16

type mailKey struct {
	src, dst, tag int
}

// hub is the rendezvous point of one in-process group.
type hub struct {
	size int
	done <-chan struct{}

	mu    sync.Mutex
	count int
	gen   chan struct{}
	slots [][]complex128
	mail  map[mailKey]chan []byte
}

func newHub(size int, done <-chan struct{}) *hub {
	return &hub{
		size:  size,
		done:  done,
		gen:   make(chan struct{}),
		slots: make([][]complex128, size),
		mail:  make(map[mailKey]chan []byte),
	}
}

func (h *hub) barrier() error {
	h.mu.Lock()
	h.count++
	gen := h.gen
	if h.count == h.size {
		h.count = 0
		h.gen = make(chan struct{})
		close(gen)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	select {
	case <-gen:
		return nil
	case <-h.done:
		return ErrAborted
	}
}

func (h *hub) mailbox(k mailKey) chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.mail[k]
	if !ok {
		ch = make(chan []byte, mailboxDepth)
		h.mail[k] = ch
	}
	return ch
}

// member is one rank's Communicator handle on a hub.
type member struct {
	hub  *hub
	rank int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.hub.size }

func (m *member) Barrier() error { return m.hub.barrier() }

func (m *member) checkRank(r int) error {
	if r < 0 || r >= m.hub.size {
		return fmt.Errorf("%w: %d of %d", ErrBadRank, r, m.hub.size)
	}
	return nil
}

func (m *member) Broadcast(buf []complex128, root int) error {
	if err := m.checkRank(root); err != nil {
		return err
	}
	if m.hub.size == 1 {
		return nil
	}
	m.hub.slots[m.rank] = buf
	if err := m.hub.barrier(); err != nil {
		return err
	}
	var err error
	if m.rank != root {
		src := m.hub.slots[root]
		if len(src) != len(buf) {
			err = fmt.Errorf("%w: broadcast %d into %d", ErrSizeMismatch, len(src), len(buf))
		} else {
			copy(buf, src)
		}
	}
	// Root's buffer stays pinned until every reader is done.
	if berr := m.hub.barrier(); berr != nil {
		return berr
	}
	return err
}

func (m *member) ReduceSum(buf []complex128, root int) error {
	if err := m.checkRank(root); err != nil {
		return err
	}
	if m.hub.size == 1 {
		return nil
	}
	m.hub.slots[m.rank] = buf
	if err := m.hub.barrier(); err != nil {
		return err
	}
	var err error
	if m.rank == root {
		for r, src := range m.hub.slots {
			if r == root {
				continue
			}
			if len(src) != len(buf) {
				err = fmt.Errorf("%w: rank %d sent %d, root has %d", ErrSizeMismatch, r, len(src), len(buf))
				break
			}
			for i, v := range src {
				buf[i] += v
			}
		}
	}
	if berr := m.hub.barrier(); berr != nil {
		return berr
	}
	return err
}

func (m *member) Send(data []byte, dest, tag int) error {
	if err := m.checkRank(dest); err != nil {
		return err
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	select {
	case m.hub.mailbox(mailKey{src: m.rank, dst: dest, tag: tag}) <- msg:
		return nil
	case <-m.hub.done:
		return ErrAborted
	}
}

func (m *member) Recv(source, tag int) ([]byte, error) {
	if err := m.checkRank(source); err != nil {
		return nil, err
	}
	select {
	case msg := <-m.hub.mailbox(mailKey{src: source, dst: m.rank, tag: tag}):
		return msg, nil
	case <-m.hub.done:
		return nil, ErrAborted
	}
}
