// Package tcp implements an spmd.Runtime where every rank is a separate OS
// process, coordinated over persistent TCP connections described by a
// cluster topology (pkg/config's YAML cluster file). Unlike pkg/spmd/local,
// a rank here cannot literally ship a Go closure to a peer process — only
// the small, POD, tag-plus-payload messages spec.md's §9 design notes
// anticipate ("small POD messages with a tag byte per closure kind"). This
// package's Async therefore only runs fn locally (dest == this rank);
// cross-rank work is expressed through RegisterHandler/Send, the tagged-
// message primitive those closures stand in for when run over a real
// network. Barrier and AllReduce need no such workaround — both are
// naturally POD (a rendezvous and a float) and are fully distributed here,
// centralized through rank 0.
package tcp

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/seriesdb/seriesdb/pkg/spmd"
)

// Topology lists every rank's dial address, index == rank.
type Topology []string

// message is the wire envelope for every control and tagged-application
// message this transport sends.
type message struct {
	Kind    byte
	From    int
	Tag     byte
	Payload []byte
	ReduceOp spmd.ReduceOp
	Value    float64
}

const (
	kindHandshake byte = iota
	kindApplication
	kindBarrierArrive
	kindBarrierRelease
	kindReduceContribute
	kindReduceResult
)

// Runtime is one rank's connection to its peers.
type Runtime struct {
	rank int
	topo Topology

	mu    sync.Mutex
	conns map[int]*conn // peer rank -> connection (rank 0 holds one per peer; peers hold one to rank 0)

	handlersMu sync.Mutex
	handlers   map[byte]func(from int, payload []byte)

	listener net.Listener

	barrierMu      sync.Mutex
	barrierCond    *sync.Cond
	barrierArrived map[int]bool
	barrierRelease bool

	reduceMu     sync.Mutex
	reduceCond   *sync.Cond
	reduceValues map[int]float64
	reduceOp     spmd.ReduceOp
	reduceResult float64
	reduceReady  bool
}

type conn struct {
	mu  sync.Mutex
	nc  net.Conn
	enc *gob.Encoder
	dec *gob.Decoder
}

// Dial establishes this rank's connections within topo and begins serving
// incoming peer connections on topo[rank]. Rank 0 accepts one inbound
// connection per other rank and acts as the Barrier/AllReduce coordinator;
// every other rank dials rank 0 once. Blocks until every expected
// connection is established.
func Dial(rank int, topo Topology) (*Runtime, error) {
	rt := &Runtime{
		rank:           rank,
		topo:           topo,
		conns:          make(map[int]*conn),
		handlers:       make(map[byte]func(from int, payload []byte)),
		barrierArrived: make(map[int]bool),
		reduceValues:   make(map[int]float64),
	}
	rt.barrierCond = sync.NewCond(&rt.barrierMu)
	rt.reduceCond = sync.NewCond(&rt.reduceMu)

	ln, err := net.Listen("tcp", topo[rank])
	if err != nil {
		return nil, fmt.Errorf("tcp: listen on %s: %w", topo[rank], err)
	}
	rt.listener = ln

	if rank == 0 {
		go rt.acceptLoop(len(topo) - 1)
	} else {
		c, err := dialPeer(topo[0], rank)
		if err != nil {
			return nil, err
		}
		rt.setConn(0, c)
		go rt.readLoop(0, c)
	}
	return rt, nil
}

func dialPeer(addr string, selfRank int) (*conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", addr, err)
	}
	c := &conn{nc: nc, enc: gob.NewEncoder(nc), dec: gob.NewDecoder(bufio.NewReader(nc))}
	if err := c.enc.Encode(message{Kind: kindHandshake, From: selfRank}); err != nil {
		return nil, fmt.Errorf("tcp: handshake: %w", err)
	}
	return c, nil
}

func (rt *Runtime) acceptLoop(expect int) {
	for i := 0; i < expect; i++ {
		nc, err := rt.listener.Accept()
		if err != nil {
			return
		}
		c := &conn{nc: nc, enc: gob.NewEncoder(nc), dec: gob.NewDecoder(bufio.NewReader(nc))}
		var hello message
		if err := c.dec.Decode(&hello); err != nil || hello.Kind != kindHandshake {
			nc.Close()
			continue
		}
		rt.setConn(hello.From, c)
		go rt.readLoop(hello.From, c)
	}
}

func (rt *Runtime) setConn(peer int, c *conn) {
	rt.mu.Lock()
	rt.conns[peer] = c
	rt.mu.Unlock()
}

func (rt *Runtime) readLoop(peer int, c *conn) {
	for {
		var m message
		if err := c.dec.Decode(&m); err != nil {
			return
		}
		switch m.Kind {
		case kindApplication:
			rt.handlersMu.Lock()
			h := rt.handlers[m.Tag]
			rt.handlersMu.Unlock()
			if h != nil {
				h(m.From, m.Payload)
			}
		case kindBarrierArrive:
			rt.recordArrival(m.From)
		case kindBarrierRelease:
			rt.releaseBarrier()
		case kindReduceContribute:
			rt.recordReduce(m.From, m.ReduceOp, m.Value)
		case kindReduceResult:
			rt.recordReduceResult(m.Value)
		}
	}
}

func (rt *Runtime) send(peer int, m message) error {
	rt.mu.Lock()
	c := rt.conns[peer]
	rt.mu.Unlock()
	if c == nil {
		return fmt.Errorf("tcp: no connection to rank %d", peer)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(m)
}

// RegisterHandler installs fn to run whenever a peer calls Send with this
// tag. One handler per tag; registering the same tag twice replaces it.
func (rt *Runtime) RegisterHandler(tag byte, fn func(from int, payload []byte)) {
	rt.handlersMu.Lock()
	rt.handlers[tag] = fn
	rt.handlersMu.Unlock()
}

// Send delivers a tagged POD message to dest, invoking whatever handler
// dest has registered for tag. This is the cross-process primitive the
// package doc describes as standing in for an arbitrary Async closure.
func (rt *Runtime) Send(dest int, tag byte, payload []byte) error {
	if dest == rt.rank {
		rt.handlersMu.Lock()
		h := rt.handlers[tag]
		rt.handlersMu.Unlock()
		if h != nil {
			h(rt.rank, payload)
		}
		return nil
	}
	return rt.send(dest, message{Kind: kindApplication, From: rt.rank, Tag: tag, Payload: payload})
}

func (rt *Runtime) Rank() int  { return rt.rank }
func (rt *Runtime) World() int { return len(rt.topo) }

// Async runs fn immediately when dest is this rank, and panics otherwise —
// see the package doc for why an arbitrary closure cannot cross a process
// boundary here. Code that needs cross-rank work under this transport
// should use RegisterHandler/Send instead.
func (rt *Runtime) Async(dest int, fn func(ctx context.Context)) {
	if dest != rt.rank {
		panic("tcp: Async cannot deliver an arbitrary closure to a remote rank; use RegisterHandler/Send")
	}
	fn(context.Background())
}

func (rt *Runtime) recordArrival(peer int) {
	rt.barrierMu.Lock()
	rt.barrierArrived[peer] = true
	rt.barrierMu.Unlock()
}

func (rt *Runtime) releaseBarrier() {
	rt.barrierMu.Lock()
	rt.barrierRelease = true
	rt.barrierCond.Broadcast()
	rt.barrierMu.Unlock()
}

// Barrier rendezvous all ranks through rank 0: every non-zero rank signals
// arrival and waits for a release; rank 0 waits for every peer's arrival
// signal, then broadcasts release to all of them before returning itself.
func (rt *Runtime) Barrier(ctx context.Context) error {
	if rt.rank == 0 {
		for {
			rt.barrierMu.Lock()
			n := len(rt.barrierArrived)
			rt.barrierMu.Unlock()
			if n == rt.World()-1 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
		rt.barrierMu.Lock()
		rt.barrierArrived = make(map[int]bool)
		rt.barrierMu.Unlock()
		for peer := 1; peer < rt.World(); peer++ {
			if err := rt.send(peer, message{Kind: kindBarrierRelease, From: 0}); err != nil {
				return err
			}
		}
		return nil
	}

	rt.barrierMu.Lock()
	rt.barrierRelease = false
	rt.barrierMu.Unlock()
	if err := rt.send(0, message{Kind: kindBarrierArrive, From: rt.rank}); err != nil {
		return err
	}
	rt.barrierMu.Lock()
	for !rt.barrierRelease {
		rt.barrierCond.Wait()
	}
	rt.barrierMu.Unlock()
	return nil
}

func (rt *Runtime) recordReduce(peer int, op spmd.ReduceOp, v float64) {
	rt.reduceMu.Lock()
	rt.reduceValues[peer] = v
	rt.reduceOp = op
	rt.reduceMu.Unlock()
}

func (rt *Runtime) recordReduceResult(v float64) {
	rt.reduceMu.Lock()
	rt.reduceResult = v
	rt.reduceReady = true
	rt.reduceCond.Broadcast()
	rt.reduceMu.Unlock()
}

// AllReduce combines v from every rank through rank 0, which gathers every
// peer's contribution, folds it with its own, and broadcasts the result.
func (rt *Runtime) AllReduce(ctx context.Context, op spmd.ReduceOp, v float64) (float64, error) {
	if rt.rank == 0 {
		rt.reduceMu.Lock()
		rt.reduceValues = make(map[int]float64)
		rt.reduceMu.Unlock()

		for {
			rt.reduceMu.Lock()
			n := len(rt.reduceValues)
			rt.reduceMu.Unlock()
			if n == rt.World()-1 {
				break
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}

		rt.reduceMu.Lock()
		acc := v
		for _, peerVal := range rt.reduceValues {
			acc = spmd.ApplyOp(op, acc, peerVal)
		}
		rt.reduceMu.Unlock()

		for peer := 1; peer < rt.World(); peer++ {
			if err := rt.send(peer, message{Kind: kindReduceResult, From: 0, Value: acc}); err != nil {
				return 0, err
			}
		}
		return acc, nil
	}

	rt.reduceMu.Lock()
	rt.reduceReady = false
	rt.reduceMu.Unlock()
	if err := rt.send(0, message{Kind: kindReduceContribute, From: rt.rank, ReduceOp: op, Value: v}); err != nil {
		return 0, err
	}
	rt.reduceMu.Lock()
	for !rt.reduceReady {
		rt.reduceCond.Wait()
	}
	result := rt.reduceResult
	rt.reduceMu.Unlock()
	return result, nil
}

// Close shuts down the listener and every peer connection.
func (rt *Runtime) Close() error {
	rt.listener.Close()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, c := range rt.conns {
		c.nc.Close()
	}
	return nil
}
