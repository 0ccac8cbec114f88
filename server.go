// Originally derived from: btcsuite/btcd/server.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/inventory"
	"github.com/prodigeni/bitcoin-broadcast/peer"
	"github.com/prodigeni/bitcoin-broadcast/relay"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

const (
	// connectionRetryInterval is the amount of time to wait in between
	// retries when connecting to persistent peers.
	connectionRetryInterval = time.Second * 10

	// maxRetryInterval caps the wait between reconnection attempts.
	maxRetryInterval = time.Minute * 5
)

// errShuttingDown is returned by operations refused during shutdown.
var errShuttingDown = errors.New("server is shutting down")

// serverPeer is a peer as seen by the server: the connection together with
// the queue of objects waiting to be relayed to it.
type serverPeer struct {
	*peer.Peer
	conn    peer.Connection
	addr    string
	queue   *relay.Queue
	retries int
}

// reject turns away a peer that the server will not start.
func (sp *serverPeer) reject() {
	sp.Disconnect()
	sp.conn.Close()
}

// The peerState is used by the server to keep track of what the peers it is
// connected to are up to.
type peerState struct {
	peers           map[*serverPeer]struct{}
	outboundPeers   map[*serverPeer]struct{}
	persistentPeers map[*serverPeer]struct{}
}

// Count returns the total number of peers.
func (p *peerState) Count() int {
	return len(p.peers) + len(p.outboundPeers) + len(p.persistentPeers)
}

// forAllPeers is a helper function that runs closure on all peers known to
// peerState.
func (p *peerState) forAllPeers(closure func(sp *serverPeer)) {
	for e := range p.peers {
		closure(e)
	}
	for e := range p.outboundPeers {
		closure(e)
	}
	for e := range p.persistentPeers {
		closure(e)
	}
}

// list returns the set sp belongs in.
func (p *peerState) list(sp *serverPeer) map[*serverPeer]struct{} {
	switch {
	case sp.Inbound:
		return p.peers
	case sp.Persistent:
		return p.persistentPeers
	default:
		return p.outboundPeers
	}
}

func newPeerState() *peerState {
	return &peerState{
		peers:           make(map[*serverPeer]struct{}),
		outboundPeers:   make(map[*serverPeer]struct{}),
		persistentPeers: make(map[*serverPeer]struct{}),
	}
}

// inventoryStats is a snapshot of the server's inventory and relay state.
type inventoryStats struct {
	Objects      int
	Peers        int
	Queued       int
	BytesRead    uint64
	BytesWritten uint64
}

// server admits the messages its peers receive into the inventory and relays
// every new object to all other peers. It implements peer.Logic.
type server struct {
	listeners []peer.Listener
	started   int32 // atomic
	shutdown  int32 // atomic
	state     *peerState
	newPeers  chan *serverPeer
	donePeers chan *serverPeer
	query     chan interface{}
	wg        sync.WaitGroup
	quit      chan struct{}
	rpcServer *rpcServer

	// invMtx protects everything below. It must not be held while calling
	// Peer.Disconnect, which calls back into DonePeer.
	invMtx     sync.Mutex
	inventory  *inventory.Inventory
	relayPeers map[*peer.Peer]*serverPeer

	// heights maps the hash of every block in the inventory to its
	// declared height.
	heights map[wire.Hash]uint32
}

// admission is an object that has just entered the inventory.
type admission struct {
	hash wire.Hash
	obj  wire.Object
}

// blockHeight returns the height to declare for a block received from src.
// A block whose parent is known sits one above it. Otherwise the block is
// taken to be the next one after the best height src has announced. The
// child of an unconfirmed block is unconfirmed too. invMtx must be held.
func (s *server) blockHeight(src *peer.Peer, header *wire.BlockHeader) uint32 {
	if h, ok := s.heights[header.PrevBlock]; ok {
		if h == wire.HeightUnconfirmed {
			return wire.HeightUnconfirmed
		}
		return h + 1
	}
	if src == nil {
		return wire.HeightUnconfirmed
	}
	best := src.BestHeight()
	if best < 0 {
		best = 0
	}
	return uint32(best) + 1
}

// admitLocked adds one object to the inventory and queues it for every peer
// except src. invMtx must be held.
func (s *server) admitLocked(src *peer.Peer, obj *wire.Object, admitted []admission) ([]admission, error) {
	hash, ok, err := s.inventory.Admit(obj)
	if err != nil || !ok {
		return admitted, err
	}

	for p, sp := range s.relayPeers {
		if p == src {
			continue
		}
		sp.queue.Enqueue(hash)
	}

	return append(admitted, admission{hash: *hash, obj: *obj}), nil
}

// admit classifies a message, assigns it a declared height and admits it
// along with, for blocks and if so configured, its transactions. src is nil
// for objects that did not come from a peer. Peers with new objects are
// woken and RPC subscribers are notified after the lock is released.
func (s *server) admit(src *peer.Peer, command string, payload []byte) ([]admission, error) {
	t := wire.ObjectTypeFromCommand(command)
	switch t {
	case wire.ObjectTypeOther, wire.ObjectTypeVersion, wire.ObjectTypeVerAck:
		serverLog.Tracef("Not relaying %s message", command)
		return nil, nil
	}

	obj := wire.NewObject(t, wire.HeightUnconfirmed, payload)

	var header *wire.BlockHeader
	if t == wire.ObjectTypeBlock {
		var err error
		header, err = wire.NewBlockHeaderFromPayload(payload)
		if err != nil {
			return nil, err
		}
	}

	s.invMtx.Lock()
	if header != nil {
		obj.Height = s.blockHeight(src, header)
	}
	admitted, err := s.admitLocked(src, obj, nil)
	if err == nil && header != nil && len(admitted) == 1 {
		s.heights[admitted[0].hash] = obj.Height
		if src != nil && obj.Height != wire.HeightUnconfirmed {
			src.UpdateBestHeight(int32(obj.Height))
		}
		if cfg.BlockTxs {
			admitted, err = s.admitBlockTxsLocked(src, obj, admitted)
		}
	}
	wake := make([]*peer.Peer, 0, len(s.relayPeers))
	if len(admitted) > 0 {
		for p := range s.relayPeers {
			if p != src {
				wake = append(wake, p)
			}
		}
	}
	s.invMtx.Unlock()

	for _, p := range wake {
		p.WakeSend()
	}
	if s.rpcServer != nil {
		for i := range admitted {
			s.rpcServer.notifyObject(&admitted[i].hash, &admitted[i].obj)
		}
	}

	return admitted, err
}

// admitBlockTxsLocked admits every transaction of block as a tx object at
// the block's height. A block whose transactions cannot be walked is kept;
// the error is only logged. invMtx must be held.
func (s *server) admitBlockTxsLocked(src *peer.Peer, block *wire.Object, admitted []admission) ([]admission, error) {
	txs, err := wire.BlockTransactions(block.Payload)
	if err != nil {
		serverLog.Warnf("Unable to split block %s: %v", admitted[0].hash, err)
		return admitted, nil
	}

	for _, tx := range txs {
		obj := wire.NewObject(wire.ObjectTypeTx, block.Height,
			append([]byte(nil), tx...))
		admitted, err = s.admitLocked(src, obj, admitted)
		if err != nil {
			return admitted, err
		}
	}
	return admitted, nil
}

// HandleMessage admits an object received from p and relays it to every
// other peer.
func (s *server) HandleMessage(p *peer.Peer, command string, payload []byte) error {
	serverLog.Debugf("Received %s (%s) from %s", command,
		newLogClosure(func() string { return messageSummary(command, payload) }),
		p.Addr())

	_, err := s.admit(p, command, payload)
	return err
}

// NextObject returns the next object waiting in p's relay queue.
func (s *server) NextObject(p *peer.Peer) (*wire.Hash, *wire.Object, bool) {
	s.invMtx.Lock()
	defer s.invMtx.Unlock()

	sp, ok := s.relayPeers[p]
	if !ok {
		return nil, nil, false
	}
	return sp.queue.Dequeue()
}

// ObjectSent marks the object as sent. The first time an object is sent it
// moves ahead in every queue still holding it.
func (s *server) ObjectSent(p *peer.Peer, hash *wire.Hash) {
	s.invMtx.Lock()
	defer s.invMtx.Unlock()

	obj, err := s.inventory.Lookup(hash)
	if err != nil {
		panic(&relay.InvariantError{Hash: *hash, Err: err})
	}
	if obj.Sent {
		return
	}

	if err := s.inventory.MarkSent(hash); err != nil {
		panic(&relay.InvariantError{Hash: *hash, Err: err})
	}
	for _, sp := range s.relayPeers {
		sp.queue.MarkSent(hash)
	}
	serverLog.Tracef("First send of %s %s to %s", obj.Type, hash, p.Addr())
}

// DonePeer removes p from the relay set and lets the peer handler decide
// whether to reconnect.
func (s *server) DonePeer(p *peer.Peer) {
	s.invMtx.Lock()
	sp, ok := s.relayPeers[p]
	delete(s.relayPeers, p)
	s.invMtx.Unlock()

	if !ok {
		return
	}

	select {
	case s.donePeers <- sp:
	case <-s.quit:
	}
}

// addRelayPeer registers sp to receive objects admitted from now on.
func (s *server) addRelayPeer(sp *serverPeer) {
	s.invMtx.Lock()
	sp.queue = relay.NewQueue(s.inventory)
	s.relayPeers[sp.Peer] = sp
	s.invMtx.Unlock()
}

// removeRelayPeer unregisters a peer that never started.
func (s *server) removeRelayPeer(sp *serverPeer) {
	s.invMtx.Lock()
	delete(s.relayPeers, sp.Peer)
	s.invMtx.Unlock()
}

// stats returns counts describing the inventory and the peers.
func (s *server) stats() *inventoryStats {
	s.invMtx.Lock()
	defer s.invMtx.Unlock()

	st := &inventoryStats{
		Objects: s.inventory.Count(),
		Peers:   len(s.relayPeers),
	}
	for p, sp := range s.relayPeers {
		st.Queued += sp.queue.Len()
		st.BytesRead += p.BytesRead()
		st.BytesWritten += p.BytesWritten()
	}
	return st
}

// lookupObject returns a copy of the object stored under hash.
func (s *server) lookupObject(hash *wire.Hash) (*wire.Object, error) {
	s.invMtx.Lock()
	defer s.invMtx.Unlock()

	obj, err := s.inventory.Lookup(hash)
	if err != nil {
		return nil, err
	}
	c := *obj
	return &c, nil
}

// restoreHeights rebuilds the block height index from the inventory.
func (s *server) restoreHeights() error {
	s.invMtx.Lock()
	defer s.invMtx.Unlock()

	return s.inventory.ForEach(func(hash *wire.Hash, obj *wire.Object) error {
		if obj.Type == wire.ObjectTypeBlock {
			s.heights[*hash] = obj.Height
		}
		return nil
	})
}

// handleAddPeerMsg deals with adding new peers. It is invoked from the
// peerHandler goroutine.
func (s *server) handleAddPeerMsg(sp *serverPeer) bool {
	if sp == nil {
		return false
	}

	// Ignore new peers if we're shutting down.
	if atomic.LoadInt32(&s.shutdown) != 0 {
		sp.reject()
		return false
	}

	// Limit max number of total peers.
	if s.state.Count() >= cfg.MaxPeers {
		serverLog.Infof("Max peers reached [%d] - disconnecting %s peer %s",
			cfg.MaxPeers, directionString(sp.Inbound), sp.addr)
		sp.reject()
		return false
	}

	s.addRelayPeer(sp)
	s.state.list(sp)[sp] = struct{}{}
	serverLog.Debugf("Added %s peer %s", directionString(sp.Inbound), sp.addr)

	// Inbound peers are already connected and are started here. Outbound
	// peers start themselves once they connect.
	if sp.Inbound {
		if err := sp.Start(); err != nil {
			serverLog.Debugf("Unable to start inbound peer %s: %v", sp.addr, err)
			s.removeRelayPeer(sp)
			delete(s.state.peers, sp)
			return false
		}
		return true
	}

	go s.startOutbound(sp)
	return true
}

// startOutbound connects an outbound peer, waiting first if this is a retry.
// It must be run as a goroutine.
func (s *server) startOutbound(sp *serverPeer) {
	if sp.retries > 0 {
		scaledDuration := connectionRetryInterval * time.Duration(sp.retries) / 2
		if scaledDuration > maxRetryInterval {
			scaledDuration = maxRetryInterval
		}
		select {
		case <-time.After(scaledDuration):
		case <-s.quit:
			return
		}
	}

	if err := sp.Start(); err != nil {
		serverLog.Debugf("Unable to connect to %s: %v", sp.addr, err)
		s.removeRelayPeer(sp)
		select {
		case s.donePeers <- sp:
		case <-s.quit:
		}
		return
	}

	// The peer handler may have stopped while we were connecting.
	if atomic.LoadInt32(&s.shutdown) != 0 {
		sp.Disconnect()
	}
}

// handleDonePeerMsg deals with peers that have signalled they are done. It is
// invoked from the peerHandler goroutine.
func (s *server) handleDonePeerMsg(sp *serverPeer) {
	list := s.state.list(sp)
	if _, ok := list[sp]; !ok {
		return
	}
	delete(list, sp)
	serverLog.Infof("Removed %s peer %s, %d peers remain.",
		directionString(sp.Inbound), sp.addr, s.state.Count())

	// Issue an asynchronous reconnect if the peer was a persistent
	// outbound connection.
	if !sp.Inbound && sp.Persistent && atomic.LoadInt32(&s.shutdown) == 0 {
		next, err := newOutboundPeer(s, sp.addr, true, sp.retries+1)
		if err != nil {
			serverLog.Errorf("Unable to reconnect to %s: %v", sp.addr, err)
			return
		}
		s.handleAddPeerMsg(next)
	}
}

type getConnCountMsg struct {
	reply chan int32
}

type addNodeMsg struct {
	addr      string
	permanent bool
	reply     chan error
}

// handleQuery is the central handler for all queries and commands from other
// goroutines related to the peer state.
func (s *server) handleQuery(querymsg interface{}) {
	switch msg := querymsg.(type) {
	case getConnCountMsg:
		nconnected := int32(0)
		s.state.forAllPeers(func(sp *serverPeer) {
			if sp.Connected() {
				nconnected++
			}
		})
		msg.reply <- nconnected

	case addNodeMsg:
		msg.reply <- s.addNode(msg.addr, msg.permanent)
	}
}

// addNode creates an outbound peer to addr. It is invoked from the
// peerHandler goroutine.
func (s *server) addNode(addr string, permanent bool) error {
	for sp := range s.state.persistentPeers {
		if sp.addr == addr {
			return errors.New("peer already connected")
		}
	}

	sp, err := newOutboundPeer(s, addr, permanent, 0)
	if err != nil {
		return err
	}
	if !s.handleAddPeerMsg(sp) {
		return errors.New("failed to add peer")
	}
	return nil
}

// listenHandler is the main listener which accepts incoming connections for the
// server. It must be run as a goroutine.
func (s *server) listenHandler(listener peer.Listener) {
	serverLog.Infof("Server listening on %s", listener.Addr())
	for atomic.LoadInt32(&s.shutdown) == 0 {
		conn, err := listener.Accept()
		if err != nil {
			// Only log the error if we're not forcibly shutting down.
			if atomic.LoadInt32(&s.shutdown) == 0 {
				serverLog.Errorf("Can't accept connection: %v", err)
			}
			continue
		}
		select {
		case s.newPeers <- newInboundPeer(s, conn):
		case <-s.quit:
			conn.Close()
		}
	}
	s.wg.Done()
	serverLog.Tracef("Listener handler done for %s", listener.Addr())
}

// peerHandler is used to handle peer operations such as adding and removing
// peers to and from the server. It must be run in a goroutine.
func (s *server) peerHandler(startPeers []string) {
	serverLog.Tracef("Starting peer handler")

	for _, addr := range startPeers {
		if err := s.addNode(addr, true); err != nil {
			serverLog.Errorf("Unable to add peer %s: %v", addr, err)
		}
	}

	for {
		select {
		// Shutdown the peer handler.
		case <-s.quit:
			s.state.forAllPeers(func(sp *serverPeer) {
				sp.Disconnect()
			})
			s.wg.Done()
			serverLog.Tracef("Peer handler done")
			return

		// New peers connected to the server.
		case sp := <-s.newPeers:
			s.handleAddPeerMsg(sp)

		// Disconnected peers.
		case sp := <-s.donePeers:
			s.handleDonePeerMsg(sp)

		case qmsg := <-s.query:
			s.handleQuery(qmsg)
		}
	}
}

// ConnectedCount returns the number of currently connected peers.
func (s *server) ConnectedCount() int32 {
	replyChan := make(chan int32, 1)

	select {
	case s.query <- getConnCountMsg{reply: replyChan}:
	case <-s.quit:
		return 0
	}

	return <-replyChan
}

// AddAddr adds addr as a new outbound peer. If permanent is true then the
// peer will be persistent and reconnect if the connection is lost.
func (s *server) AddAddr(addr string, permanent bool) error {
	replyChan := make(chan error, 1)

	select {
	case s.query <- addNodeMsg{addr: addr, permanent: permanent, reply: replyChan}:
	case <-s.quit:
		return errShuttingDown
	}

	return <-replyChan
}

// Start begins accepting connections from peers and connects to the peers
// given with --connect.
func (s *server) Start() {
	s.start(cfg.ConnectPeers)
}

// start is the real start function. It takes parameters that can be exposed
// for testing purposes.
func (s *server) start(startPeers []string) {
	// Already started?
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	serverLog.Trace("Starting server")

	// Start all the listeners. There will not be any if listening is
	// disabled.
	for _, listener := range s.listeners {
		s.wg.Add(1)
		go s.listenHandler(listener)
	}

	s.wg.Add(1)
	go s.peerHandler(startPeers)

	// Start RPC server.
	if s.rpcServer != nil {
		s.rpcServer.Start()
	}
}

// Stop gracefully shuts down the server by stopping and disconnecting all
// peers and the main listener.
func (s *server) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		serverLog.Infof("Server is already in the process of shutting down")
		return nil
	}

	serverLog.Warnf("Server shutting down")

	// Signal the remaining goroutines to quit.
	close(s.quit)

	// Stop all the listeners. There will not be any listeners if
	// listening is disabled.
	for _, listener := range s.listeners {
		err := listener.Close()
		if err != nil {
			return err
		}
	}

	// Stop RPC server.
	if s.rpcServer != nil {
		if err := s.rpcServer.Stop(); err != nil {
			return err
		}
	}

	return nil
}

// WaitForShutdown blocks until the main listener and peer handlers are stopped.
func (s *server) WaitForShutdown() {
	s.wg.Wait()
	if s.rpcServer != nil {
		s.rpcServer.WaitForShutdown()
	}
}

// parseListeners splits the list of listen addresses passed in addrs into
// IPv4 and IPv6 slices and returns them. This allows easy creation of the
// listeners on the correct interface "tcp4" and "tcp6". It also properly
// detects addresses which apply to "all interfaces" and adds the address to
// both slices.
func parseListeners(addrs []string) ([]string, []string, bool, error) {
	ipv4ListenAddrs := make([]string, 0, len(addrs)*2)
	ipv6ListenAddrs := make([]string, 0, len(addrs)*2)
	haveWildcard := false

	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, nil, false, err
		}

		// Empty host or host of * on plan9 is both IPv4 and IPv6.
		if host == "" || (host == "*" && runtime.GOOS == "plan9") {
			ipv4ListenAddrs = append(ipv4ListenAddrs, addr)
			ipv6ListenAddrs = append(ipv6ListenAddrs, addr)
			haveWildcard = true
			continue
		}

		// Parse the IP.
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, nil, false, fmt.Errorf("'%s' is not a "+
				"valid IP address", host)
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			ipv6ListenAddrs = append(ipv6ListenAddrs, addr)
		} else {
			ipv4ListenAddrs = append(ipv4ListenAddrs, addr)
		}
	}
	return ipv4ListenAddrs, ipv6ListenAddrs, haveWildcard, nil
}

// listenAll calls listen once for every address in addrs, on tcp4 or tcp6
// according to its family. Addresses that cannot be opened are logged and
// skipped; it is an error if none can be.
func listenAll(addrs []string, logger btclog.Logger, listen func(network, addr string) error) error {
	ipv4Addrs, ipv6Addrs, _, err := parseListeners(addrs)
	if err != nil {
		return err
	}

	opened := 0
	for _, family := range []struct {
		network string
		addrs   []string
	}{
		{"tcp4", ipv4Addrs},
		{"tcp6", ipv6Addrs},
	} {
		for _, addr := range family.addrs {
			if err := listen(family.network, addr); err != nil {
				logger.Warnf("Can't listen on %s: %v", addr, err)
				continue
			}
			opened++
		}
	}

	if opened == 0 {
		return errors.New("no valid listen address")
	}
	return nil
}

// defaultListen opens a peer listener with the configured rate limits.
func defaultListen(service, addr string) (peer.Listener, error) {
	return peer.Listen(service, addr, cfg.MaxDown, cfg.MaxUp)
}

// newServer returns a new server that keeps its inventory in db and listens
// on listenAddrs. Use Start to begin accepting connections from peers.
func newServer(listenAddrs []string, db database.Db,
	listen func(string, string) (peer.Listener, error)) (*server, error) {

	var listeners []peer.Listener
	if !cfg.DisableListen {
		err := listenAll(listenAddrs, serverLog, func(network, addr string) error {
			listener, err := listen(network, addr)
			if err == nil {
				listeners = append(listeners, listener)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	s := server{
		listeners:  listeners,
		state:      newPeerState(),
		newPeers:   make(chan *serverPeer, cfg.MaxPeers),
		donePeers:  make(chan *serverPeer, cfg.MaxPeers),
		query:      make(chan interface{}),
		quit:       make(chan struct{}),
		inventory:  inventory.New(db),
		relayPeers: make(map[*peer.Peer]*serverPeer),
		heights:    make(map[wire.Hash]uint32),
	}

	if err := s.restoreHeights(); err != nil {
		return nil, err
	}

	if !cfg.DisableRPC {
		var err error
		s.rpcServer, err = newRPCServer(cfg.RPCListeners, &s)
		if err != nil {
			return nil, err
		}
	}

	return &s, nil
}
