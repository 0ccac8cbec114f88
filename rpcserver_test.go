// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/cenkalti/rpc2"
	"github.com/cenkalti/rpc2/jsonrpc"
	"github.com/gorilla/websocket"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

const (
	rpcAddr = "127.0.0.1:18442"
	rpcLoc  = "ws://" + rpcAddr + "/"

	rpcAdminUser = "admin"
	rpcAdminPass = "adminpass"

	rpcLimitUser = "limit"
	rpcLimitPass = "limitpass"
)

func rpcTests(s *server, client *rpc2.Client, t *testing.T) {
	// Do not change test order. Tests depend on previous tests successfully
	// finishing.
	testRPCAuth(client, t)
	testRPCLimited(client, t)
	testRPCSendObject(s, client, t)
	testRPCGetObject(client, t)
	testRPCStats(client, t)
	testRPCSubscriptions(s, client, t)
}

// dialRPC opens a websocket connection to the test RPC server.
func dialRPC(t *testing.T) (*rpc2.Client, *websocket.Conn) {
	ws, _, err := websocket.DefaultDialer.Dial(rpcLoc, nil)
	if err != nil {
		t.Fatal(err)
	}
	client := rpc2.NewClientWithCodec(jsonrpc.NewJSONCodec(ws.UnderlyingConn()))
	go client.Run()
	return client, ws
}

func authenticate(client *rpc2.Client, username, password string) (bool, error) {
	var res bool
	err := client.Call(rpcHandleAuth, &RPCAuthArgs{
		Username: username,
		Password: password,
	}, &res)
	return res, err
}

// testRPCAuth tests authentication failures for all RPC methods and also
// Authenticate method.
func testRPCAuth(client *rpc2.Client, t *testing.T) {
	// Test access denied.
	failTests := []struct {
		method string
		args   interface{}
	}{
		{rpcHandleGetObject, wire.Hash{}.String()},
		{rpcHandleGetInventoryStats, struct{}{}},
		{rpcHandleSendObject, &RPCSendArgs{Command: wire.CmdTx, Object: "AA=="}},
		{rpcHandleSubscribeObjects, &RPCSubscribeArgs{}},
	}

	for _, test := range failTests {
		err := client.Call(test.method, test.args, nil)
		if err == nil || err.Error() != errAccessDenied.Error() {
			t.Errorf("for %s expected %v got %v", test.method, errAccessDenied,
				err)
		}
	}

	// Test Authenticate. The limited user comes last so that the next
	// tests start without admin rights.
	authTests := []struct {
		username string
		password string
		success  bool
	}{
		{"", "", false},
		{"sadsadadoijsad", "asdfsafafdfasdfdf", false},
		{rpcAdminUser, rpcLimitPass, false},
		{rpcAdminUser, rpcAdminPass, true},
		{rpcLimitUser, rpcLimitPass, true},
	}

	for i, test := range authTests {
		res, err := authenticate(client, test.username, test.password)
		if err != nil {
			t.Errorf("for case #%d got error %v", i, err)
		}
		if test.success != res {
			t.Errorf("for case #%d expected %v got %v", i, test.success, res)
		}
	}
}

// testRPCLimited checks that a limited user may not inject objects.
func testRPCLimited(client *rpc2.Client, t *testing.T) {
	args := &RPCSendArgs{
		Command: wire.CmdTx,
		Object:  base64.StdEncoding.EncodeToString(testTx(1)),
	}
	err := client.Call(rpcHandleSendObject, args, nil)
	if err == nil || err.Error() != errAccessDenied.Error() {
		t.Errorf("expected %v got %v", errAccessDenied, err)
	}

	if ok, err := authenticate(client, rpcAdminUser, rpcAdminPass); !ok || err != nil {
		t.Fatalf("admin authentication failed: %v", err)
	}
}

func testRPCSendObject(s *server, client *rpc2.Client, t *testing.T) {
	_, mock := connectPeer(t, s, "10.0.0.1:8333", 0)

	errorTests := []*RPCSendArgs{
		{Command: wire.CmdTx, Object: "aodisad093predikif"}, // invalid base64
		{Command: "getdata", Object: "AAAA"},                // not relayed
		{Command: wire.CmdVersion, Object: "AAAA"},          // not relayed
		{Command: wire.CmdBlock, Object: "AAAA"},            // truncated block
	}
	for i, test := range errorTests {
		if err := client.Call(rpcHandleSendObject, test, nil); err == nil {
			t.Errorf("for case #%d got no error", i)
		}
	}

	tx := testTx(1)
	args := &RPCSendArgs{
		Command: wire.CmdTx,
		Object:  base64.StdEncoding.EncodeToString(tx),
	}
	var hashStr string
	if err := client.Call(rpcHandleSendObject, args, &hashStr); err != nil {
		t.Fatalf("for valid SendObject got error %v", err)
	}
	if want := wire.DoubleHashH(tx); hashStr != want.String() {
		t.Errorf("got hash %s, want %s", hashStr, want)
	}

	// Objects from RPC go to every peer.
	cmd, payload := mock.Receive(t)
	if cmd != wire.CmdTx || !bytes.Equal(payload, tx) {
		t.Errorf("peer got %s %x, want tx %x", cmd, payload, tx)
	}

	if err := client.Call(rpcHandleSendObject, args, nil); err == nil {
		t.Error("got no error for a duplicate object")
	}
}

func testRPCGetObject(client *rpc2.Client, t *testing.T) {
	tx := testTx(1)
	hash := wire.DoubleHashH(tx)

	var out RPCObjectOut
	if err := client.Call(rpcHandleGetObject, hash.String(), &out); err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if out.Type != wire.CmdTx || out.Height != wire.HeightUnconfirmed ||
		out.Object != base64.StdEncoding.EncodeToString(tx) {
		t.Errorf("got %+v", out)
	}

	missing := wire.DoubleHashH([]byte("missing"))
	if err := client.Call(rpcHandleGetObject, missing.String(), &out); err == nil {
		t.Error("got no error for a missing object")
	}
	if err := client.Call(rpcHandleGetObject, "not a hash", &out); err == nil {
		t.Error("got no error for an invalid hash")
	}
}

func testRPCStats(client *rpc2.Client, t *testing.T) {
	var out RPCStatsOut
	if err := client.Call(rpcHandleGetInventoryStats, struct{}{}, &out); err != nil {
		t.Fatalf("GetInventoryStats failed: %v", err)
	}
	if out.Objects != 1 || out.Peers != 1 || out.Connected != 1 {
		t.Errorf("got %+v, want one object and one peer", out)
	}
}

func testRPCSubscriptions(s *server, client *rpc2.Client, t *testing.T) {
	received := make(chan *RPCReceiveArgs, 4)
	client.Handle(rpcClientHandleObject, func(client *rpc2.Client,
		args *RPCReceiveArgs, _ *struct{}) error {
		received <- args
		return nil
	})

	err := client.Call(rpcHandleSubscribeObjects,
		&RPCSubscribeArgs{Types: []string{"getdata"}}, nil)
	if err == nil {
		t.Error("got no error subscribing to an unrelayed type")
	}

	err = client.Call(rpcHandleSubscribeObjects,
		&RPCSubscribeArgs{Types: []string{wire.CmdBlock}}, nil)
	if err != nil {
		t.Fatalf("SubscribeObjects failed: %v", err)
	}

	// Only objects admitted after subscribing and of the subscribed types
	// are delivered.
	block, blockHash := testBlock(wire.Hash{}, 1)
	for _, obj := range []struct {
		command string
		payload []byte
	}{
		{wire.CmdTx, testTx(2)},
		{wire.CmdBlock, block},
	} {
		args := &RPCSendArgs{
			Command: obj.command,
			Object:  base64.StdEncoding.EncodeToString(obj.payload),
		}
		if err := client.Call(rpcHandleSendObject, args, nil); err != nil {
			t.Fatalf("SendObject failed: %v", err)
		}
	}

	select {
	case args := <-received:
		if args.Hash != blockHash.String() || args.Type != wire.CmdBlock ||
			args.Object != base64.StdEncoding.EncodeToString(block) {
			t.Errorf("got %+v", args)
		}
	case <-time.After(testTimeout):
		t.Fatal("did not receive the block")
	}

	select {
	case args := <-received:
		t.Errorf("unexpected object %+v", args)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRPCConnection(t *testing.T) {
	cfg = testConfig()
	cfg.RPCUser = rpcAdminUser
	cfg.RPCPass = rpcAdminPass
	cfg.RPCLimitUser = rpcLimitUser
	cfg.RPCLimitPass = rpcLimitPass
	cfg.RPCListeners = []string{rpcAddr}
	cfg.RPCMaxClients = 1
	cfg.DisableRPC = false
	cfg.DisableTLS = true

	s := newTestServer(t, nil)
	defer stopTestServer(s)

	client, ws := dialRPC(t)
	rpcTests(s, client, t)
	client.Close() // we're done
	ws.Close()

	eventually(t, "client removal", func() bool {
		s.rpcServer.mutex.RLock()
		defer s.rpcServer.mutex.RUnlock()
		return len(s.rpcServer.clients) == 0
	})

	// Test for authentication timeout.
	client, _ = dialRPC(t)
	select {
	case <-client.DisconnectNotify():
	case <-time.After(time.Second*rpcAuthTimeoutSeconds + testTimeout):
		t.Error("did not disconnect due to auth timeout")
	}

	eventually(t, "client removal", func() bool {
		s.rpcServer.mutex.RLock()
		defer s.rpcServer.mutex.RUnlock()
		return len(s.rpcServer.clients) == 0
	})

	// Test for RPCMaxClients.
	dialRPC(t)
	eventually(t, "client registration", func() bool {
		s.rpcServer.mutex.RLock()
		defer s.rpcServer.mutex.RUnlock()
		return len(s.rpcServer.clients) == 1
	})
	_, _, err := websocket.DefaultDialer.Dial(rpcLoc, nil)
	if err == nil {
		t.Error("RPCMaxClients isn't enforced. Second connection was successful.")
	}
}
