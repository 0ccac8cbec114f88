// Originally derived from: btcsuite/btcd/rpcserver.go
// Copyright (c) 2013-2015 The btcsuite developers.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"container/heap"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/cenkalti/hub"
	"github.com/cenkalti/rpc2"
	"github.com/cenkalti/rpc2/jsonrpc"
	"github.com/gorilla/websocket"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

const (
	// rpcAuthTimeoutSeconds is the number of seconds a connection to the
	// RPC server is allowed to stay open without authenticating before it
	// is closed.
	rpcAuthTimeoutSeconds = 5
)

const (
	// Methods defined on RPC server
	rpcHandleAuth              = "Authenticate"
	rpcHandleGetObject         = "GetObject"
	rpcHandleGetInventoryStats = "GetInventoryStats"
	rpcHandleSendObject        = "SendObject"
	rpcHandleSubscribeObjects  = "SubscribeObjects"

	// Methods defined on RPC client
	rpcClientHandleObject = "ReceiveObject"

	// Various states contained in client.State
	rpcStateRemoteAddr      = "remoteAddr"      // string
	rpcStateIsAuthenticated = "isAuthenticated" // bool
	rpcStateIsAdmin         = "isAdmin"         // bool
)

var (
	// upgrader upgrades a normal HTTP connection to websocket.
	upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	// errAccessDenied is the error sent to the client when it tries to connect
	// to a RPC method without having authenticated.
	errAccessDenied = errors.New("access denied")
)

// relayedTypes are the object types clients can subscribe to.
var relayedTypes = []wire.ObjectType{
	wire.ObjectTypeInv,
	wire.ObjectTypeTx,
	wire.ObjectTypeBlock,
	wire.ObjectTypeAddr,
}

// objectEvent is published on the RPC server's hub for every admitted
// object. Its kind is the object type.
type objectEvent struct {
	objType wire.ObjectType
	args    *RPCReceiveArgs
}

// Kind returns the hub kind of the event.
func (e *objectEvent) Kind() hub.Kind {
	return hub.Kind(e.objType)
}

// rpcClientState holds items that are relevant to a connected client.
type rpcClientState struct {
	remoteAddr      string
	isAuthenticated bool
	isAdmin         bool
}

// rpcConstructState constructs a rpcClientState object for a given client.
func rpcConstructState(client *rpc2.Client) *rpcClientState {
	state := new(rpcClientState)

	r, _ := client.State.Get(rpcStateRemoteAddr)
	state.remoteAddr = r.(string)

	isAuth, _ := client.State.Get(rpcStateIsAuthenticated)
	state.isAuthenticated = isAuth.(bool)

	isAdmin, _ := client.State.Get(rpcStateIsAdmin)
	state.isAdmin = isAdmin.(bool)

	return state
}

// objectHeap is used for arranging objects in the order of increasing counter
// numbers. All its methods implement heap.Interface.
type objectHeap []*RPCReceiveArgs

func (h objectHeap) Len() int           { return len(h) }
func (h objectHeap) Less(i, j int) bool { return h[i].Counter < h[j].Counter }
func (h objectHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *objectHeap) Push(x interface{}) {
	// Push and Pop use pointer receivers because they modify the slice's length,
	// not just its contents.
	*h = append(*h, x.(*RPCReceiveArgs))
}

func (h *objectHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// rpcClient holds anything that requires an interaction of server and client
// like the queue of objects the client subscribed to.
type rpcClient struct {
	client     *rpc2.Client
	sync.Mutex // for queue and subs
	queue      *objectHeap
	subs       map[wire.ObjectType]func()
	state      *rpcClientState
	wake       chan struct{}
	quit       chan struct{}
}

// newRPCClient creates a new rpcClient struct and does all necessary
// initializations.
func newRPCClient(client *rpc2.Client) *rpcClient {
	c := &rpcClient{
		client: client,
		queue:  &objectHeap{},
		subs:   make(map[wire.ObjectType]func()),
		state:  rpcConstructState(client),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	heap.Init(c.queue)

	return c
}

// Disconnect cancels every subscription and terminates the running goroutine.
func (c *rpcClient) Disconnect() {
	c.Lock()
	for t, cancel := range c.subs {
		cancel()
		delete(c.subs, t)
	}
	c.Unlock()

	close(c.quit)
}

// Start initializes the goroutine responsible for sending any subscribed
// objects to the client in the right order.
func (c *rpcClient) Start() {
	go c.runner()
}

func (c *rpcClient) runner() {
	for {
		c.Lock()
		var next *RPCReceiveArgs
		if c.queue.Len() != 0 {
			next = heap.Pop(c.queue).(*RPCReceiveArgs)
		}
		c.Unlock()

		if next != nil {
			if !c.sendObj(next) {
				return
			}
			continue
		}

		select {
		case <-c.quit:
			return
		case <-c.wake:
		}
	}
}

// sendObj is a helper method to send an object to the client.
func (c *rpcClient) sendObj(args *RPCReceiveArgs) bool {
	err := c.client.Call(rpcClientHandleObject, args, nil)
	if err != nil {
		rpcLog.Infof("failed to call %s on client %s: %v",
			rpcClientHandleObject, c.state.remoteAddr, err)

		// If any call fails, end all subsequent communication.
		c.client.Close()
		return false
	}
	return true
}

// NotifyObject is used to notify this client of a new object.
func (c *rpcClient) NotifyObject(args *RPCReceiveArgs) {
	c.Lock()
	heap.Push(c.queue, args)
	c.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// subscribe registers the client for objects of type t on events. A type the
// client already subscribed to is left alone.
func (c *rpcClient) subscribe(events *hub.Hub, t wire.ObjectType) {
	c.Lock()
	defer c.Unlock()

	if _, ok := c.subs[t]; ok {
		return
	}
	c.subs[t] = events.Subscribe(hub.Kind(t), func(e hub.Event) {
		c.NotifyObject(e.(*objectEvent).args)
	})
}

// rpcServer holds the items the rpc server may need to access (config,
// shutdown, main server, etc.)
type rpcServer struct {
	server       *server
	rpcSrv       *rpc2.Server
	listeners    []net.Listener
	events       hub.Hub
	counter      uint64 // atomic
	limitauthsha [sha256.Size]byte
	authsha      [sha256.Size]byte
	mutex        sync.RWMutex
	clients      map[*rpc2.Client]*rpcClient
	started      int32
	shutdown     int32
	wg           sync.WaitGroup
}

// addHandlers is responsible for adding RPC method handlers to the underlying
// RPC server.
func (s *rpcServer) addHandlers() {
	// When client connects/disconnects
	s.rpcSrv.OnConnect(s.onClientConnect)
	s.rpcSrv.OnDisconnect(s.onClientDisconnect)

	// General
	s.rpcSrv.Handle(rpcHandleAuth, s.handleAuth)

	// Objects
	s.rpcSrv.Handle(rpcHandleGetObject, s.getObject)
	s.rpcSrv.Handle(rpcHandleSendObject, s.sendObject)

	// Statistics
	s.rpcSrv.Handle(rpcHandleGetInventoryStats, s.getInventoryStats)

	// Notifications
	s.rpcSrv.Handle(rpcHandleSubscribeObjects, s.subscribeObjects)
}

// onClientConnect is run for each client that connects to the RPC server.
func (s *rpcServer) onClientConnect(client *rpc2.Client) {
	c := newRPCClient(client)
	s.mutex.Lock()
	s.clients[client] = c
	s.mutex.Unlock()
	c.Start()

	// Enforce no authentication timeout.
	go func() {
		<-time.NewTimer(time.Second * rpcAuthTimeoutSeconds).C

		if isAuth, _ := client.State.Get(rpcStateIsAuthenticated); !isAuth.(bool) {
			client.Close() // bad client
		}
	}()

	rpcLog.Infof("Client %s connected", c.state.remoteAddr)
}

// onClientDisconnect is run for each client that disconnects from the RPC server.
func (s *rpcServer) onClientDisconnect(client *rpc2.Client) {
	s.mutex.Lock()
	c, ok := s.clients[client]
	delete(s.clients, client)
	s.mutex.Unlock()

	if !ok {
		return
	}
	c.Disconnect()

	rpcLog.Infof("Client %s disconnected", c.state.remoteAddr)
}

// client returns the rpcClient for a connected client.
func (s *rpcServer) client(client *rpc2.Client) (*rpcClient, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.clients[client]
	return c, ok
}

// genCertPair generates a key/cert pair to the paths provided.
func genCertPair(certFile, keyFile string) error {
	rpcLog.Infof("Generating TLS certificates...")

	org := "bitcoin-broadcast autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := btcutil.NewTLSCertPair(org, validUntil, nil)
	if err != nil {
		return err
	}

	// Write cert and key files.
	if err = os.WriteFile(certFile, cert, 0666); err != nil {
		return err
	}
	if err = os.WriteFile(keyFile, key, 0600); err != nil {
		os.Remove(certFile)
		return err
	}

	rpcLog.Infof("Done generating TLS certificates")
	return nil
}

// limitConnections responds with a 503 service unavailable and returns true if
// adding another client would exceed the maximum allowed RPC clients.
//
// This function is safe for concurrent access.
func (s *rpcServer) limitConnections(w http.ResponseWriter, remoteAddr string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if int(len(s.clients)+1) > cfg.RPCMaxClients {
		rpcLog.Infof("Max RPC clients exceeded [%d] - disconnecting client %s",
			cfg.RPCMaxClients, remoteAddr)
		http.Error(w, "503 Too busy. Try again later.",
			http.StatusServiceUnavailable)
		return true
	}
	return false
}

// restrictAuth restricts access of the client, returning an error if the client
// is not already authenticated.
func (s *rpcServer) restrictAuth(client *rpc2.Client) error {
	state := rpcConstructState(client)
	if !state.isAuthenticated {
		return errAccessDenied
	}
	return nil
}

// restrictAdmin restricts access of the client, returning an error if the
// client is not already authenticated as an admin.
func (s *rpcServer) restrictAdmin(client *rpc2.Client) error {
	state := rpcConstructState(client)
	if !state.isAdmin {
		return errAccessDenied
	}
	return nil
}

// notifyObject is used to notify the RPC server of any new objects so that it
// can send those onwards to subscribed clients.
func (s *rpcServer) notifyObject(hash *wire.Hash, obj *wire.Object) {
	s.events.Publish(&objectEvent{
		objType: obj.Type,
		args: &RPCReceiveArgs{
			Hash:    hash.String(),
			Type:    obj.Type.String(),
			Height:  obj.Height,
			Object:  base64.StdEncoding.EncodeToString(obj.Payload),
			Counter: atomic.AddUint64(&s.counter, 1),
		},
	})
}

// newRPCServer returns a new instance of the rpcServer struct.
func newRPCServer(listenAddrs []string, s *server) (*rpcServer, error) {
	rpc := rpcServer{
		server:  s,
		rpcSrv:  rpc2.NewServer(), // Create the underlying RPC server.
		clients: make(map[*rpc2.Client]*rpcClient),
	}

	if cfg.RPCUser != "" && cfg.RPCPass != "" {
		login := cfg.RPCUser + ":" + cfg.RPCPass
		rpc.authsha = sha256.Sum256([]byte(login))
	}
	if cfg.RPCLimitUser != "" && cfg.RPCLimitPass != "" {
		login := cfg.RPCLimitUser + ":" + cfg.RPCLimitPass
		rpc.limitauthsha = sha256.Sum256([]byte(login))
	}

	// Setup TLS if not disabled.
	listenFunc := net.Listen
	if !cfg.DisableTLS {
		// Generate the TLS cert and key file if both don't already
		// exist.
		if !fileExists(cfg.RPCKey) && !fileExists(cfg.RPCCert) {
			err := genCertPair(cfg.RPCCert, cfg.RPCKey)
			if err != nil {
				return nil, err
			}
		}
		keypair, err := tls.LoadX509KeyPair(cfg.RPCCert, cfg.RPCKey)
		if err != nil {
			return nil, err
		}

		tlsConfig := tls.Config{
			Certificates: []tls.Certificate{keypair},
			MinVersion:   tls.VersionTLS12,
		}

		// Change the standard net.Listen function to the tls one.
		listenFunc = func(network, laddr string) (net.Listener, error) {
			return tls.Listen(network, laddr, &tlsConfig)
		}
	}

	err := listenAll(listenAddrs, rpcLog, func(network, addr string) error {
		listener, err := listenFunc(network, addr)
		if err == nil {
			rpc.listeners = append(rpc.listeners, listener)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("RPC: %v", err)
	}

	rpc.addHandlers()

	return &rpc, nil
}

// Stop is used by server.go to stop the rpc listener.
func (s *rpcServer) Stop() error {
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		rpcLog.Infof("RPC server is already in the process of shutting down")
		return nil
	}
	rpcLog.Warnf("RPC server shutting down")

	for _, listener := range s.listeners {
		err := listener.Close()
		if err != nil {
			rpcLog.Errorf("Problem shutting down rpc: %v", err)
			return err
		}
	}

	// Websocket connections outlive their listener.
	s.mutex.RLock()
	for client := range s.clients {
		client.Close()
	}
	s.mutex.RUnlock()

	s.wg.Wait()
	rpcLog.Infof("RPC server shutdown complete")
	return nil
}

// WaitForShutdown blocks until every RPC listener has stopped.
func (s *rpcServer) WaitForShutdown() {
	s.wg.Wait()
}

// serveWebsocket upgrades an HTTP request and serves RPC calls on it until
// the client goes away.
func (s *rpcServer) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.limitConnections(w, r.RemoteAddr) {
		return
	}

	// The upgrader has already replied to the client on failure.
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			rpcLog.Errorf("Unexpected websocket error: %v", err)
		}
		return
	}

	state := rpc2.NewState()
	state.Set(rpcStateRemoteAddr, r.RemoteAddr)
	state.Set(rpcStateIsAdmin, false)
	state.Set(rpcStateIsAuthenticated, false)

	s.rpcSrv.ServeCodecWithState(jsonrpc.NewJSONCodec(ws.UnderlyingConn()), state)
}

// Start is used by server.go to start the rpc listener.
func (s *rpcServer) Start() {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	rpcLog.Trace("Starting RPC server")

	rpcServeMux := http.NewServeMux()
	rpcServeMux.HandleFunc("/", s.serveWebsocket)
	httpServer := &http.Server{Handler: rpcServeMux}

	// Start listening on the listeners.
	for _, listener := range s.listeners {
		s.wg.Add(1)
		go func(listener net.Listener) {
			rpcLog.Infof("RPC server listening on %s", listener.Addr())
			httpServer.Serve(listener)
			rpcLog.Tracef("RPC listener done for %s", listener.Addr())
			s.wg.Done()
		}(listener)
	}
}
