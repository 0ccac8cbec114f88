// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cenkalti/rpc2"
	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// RPCAuthArgs contains arguments for Authenticate.
type RPCAuthArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAuth authenticates a websocket client using the supplied username and
// password. If the supplied authentication does not match the username and
// password expected, success is false.
//
// This check is time-constant.
//
// The function sets the values of isAuthenticated and isAdmin for the client.
// Limited users may read the inventory and subscribe to it; only admins may
// inject objects.
func (s *rpcServer) handleAuth(client *rpc2.Client, in *RPCAuthArgs, success *bool) error {
	login := in.Username + ":" + in.Password
	authsha := sha256.Sum256([]byte(login))
	c := client.State

	// Check for limited auth first as in environments with limited users, those
	// are probably expected to have a higher volume of calls
	limitcmp := subtle.ConstantTimeCompare(authsha[:], s.limitauthsha[:])
	if limitcmp == 1 {
		c.Set(rpcStateIsAuthenticated, true)
		c.Set(rpcStateIsAdmin, false)
		*success = true
		return nil
	}

	// Check for admin-level auth
	cmp := subtle.ConstantTimeCompare(authsha[:], s.authsha[:])
	if cmp == 1 {
		c.Set(rpcStateIsAuthenticated, true)
		c.Set(rpcStateIsAdmin, true)
		*success = true
		return nil
	}

	*success = false
	state := rpcConstructState(client)
	rpcLog.Warnf("RPC authentication failure from %s.", state.remoteAddr)

	return nil
}

// RPCObjectOut contains the output of GetObject.
type RPCObjectOut struct {
	Type   string `json:"type"`
	Height uint32 `json:"height"`
	Sent   bool   `json:"sent"`
	// base64 encoded payload
	Object string `json:"object"`
}

// getObject returns the object stored under the given inventory hash, in the
// byte-reversed hex form block explorers use.
func (s *rpcServer) getObject(client *rpc2.Client, hashStr string, out *RPCObjectOut) error {
	if err := s.restrictAuth(client); err != nil {
		return err
	}

	hash, err := wire.NewHashFromStr(hashStr)
	if err != nil {
		return fmt.Errorf("invalid hash: %v", err)
	}

	obj, err := s.server.lookupObject(hash)
	if err == database.ErrNonexistentObject {
		return errors.New("object not found")
	} else if err != nil {
		rpcLog.Errorf("FetchObjectByHash, database error: %v", err)
		return errors.New("database error")
	}

	out.Type = obj.Type.String()
	out.Height = obj.Height
	out.Sent = obj.Sent
	out.Object = base64.StdEncoding.EncodeToString(obj.Payload)
	return nil
}

// RPCStatsOut contains the output of GetInventoryStats.
type RPCStatsOut struct {
	Objects      int    `json:"objects"`
	Peers        int    `json:"peers"`
	Connected    int32  `json:"connected"`
	Queued       int    `json:"queued"`
	BytesRead    uint64 `json:"bytesRead"`
	BytesWritten uint64 `json:"bytesWritten"`
}

// getInventoryStats returns counts describing the inventory and the peers
// it is relayed to.
func (s *rpcServer) getInventoryStats(client *rpc2.Client, _ *struct{}, out *RPCStatsOut) error {
	if err := s.restrictAuth(client); err != nil {
		return err
	}

	st := s.server.stats()
	out.Objects = st.Objects
	out.Peers = st.Peers
	out.Connected = s.server.ConnectedCount()
	out.Queued = st.Queued
	out.BytesRead = st.BytesRead
	out.BytesWritten = st.BytesWritten
	return nil
}

// RPCSendArgs contains the input for SendObject.
type RPCSendArgs struct {
	Command string `json:"command"`
	// base64 encoded payload
	Object string `json:"object"`
}

// sendObject admits an object as though a peer had sent it and relays it to
// every peer. The inventory hash of the object is returned.
func (s *rpcServer) sendObject(client *rpc2.Client, in *RPCSendArgs, hash *string) error {
	if err := s.restrictAdmin(client); err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(in.Object)
	if err != nil {
		return errors.New("base64 decode failed")
	}

	switch wire.ObjectTypeFromCommand(in.Command) {
	case wire.ObjectTypeOther, wire.ObjectTypeVersion, wire.ObjectTypeVerAck:
		return fmt.Errorf("%s messages are not relayed", in.Command)
	}

	admitted, err := s.server.admit(nil, in.Command, data)
	if err != nil {
		return fmt.Errorf("invalid object: %v", err)
	}
	if len(admitted) == 0 {
		return errors.New("object already known")
	}

	*hash = admitted[0].hash.String()
	return nil
}

// RPCSubscribeArgs contains the input for SubscribeObjects.
type RPCSubscribeArgs struct {
	// Commands of the object types to receive. Empty means all of them.
	Types []string `json:"types"`
}

// RPCReceiveArgs contains the input for ReceiveObject on the client side.
type RPCReceiveArgs struct {
	Hash   string `json:"hash"`
	Type   string `json:"type"`
	Height uint32 `json:"height"`
	// base64 encoded payload
	Object  string `json:"object"`
	Counter uint64 `json:"counter"`
}

// subscribeObjects subscribes the client to receiving objects of the given
// types as soon as they are admitted. Objects admitted earlier are not sent.
// On the client side, ReceiveObject RPC method is called in admission order.
func (s *rpcServer) subscribeObjects(client *rpc2.Client, args *RPCSubscribeArgs,
	_ *struct{}) error {
	// Make sure only authenticated users can subscribe to objects.
	if err := s.restrictAuth(client); err != nil {
		return err
	}

	types := relayedTypes
	if len(args.Types) != 0 {
		types = make([]wire.ObjectType, 0, len(args.Types))
	next:
		for _, cmd := range args.Types {
			t := wire.ObjectTypeFromCommand(cmd)
			for _, r := range relayedTypes {
				if t == r {
					types = append(types, t)
					continue next
				}
			}
			return fmt.Errorf("%s objects are not relayed", cmd)
		}
	}

	c, ok := s.client(client)
	if !ok {
		return errors.New("client not connected")
	}
	for _, t := range types {
		c.subscribe(&s.events, t)
	}
	return nil
}
