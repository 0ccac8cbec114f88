package wire

import (
	"strings"
)

// CommandSize is the fixed size of all commands in the common bitcoin message
// header.  Shorter commands must be zero padded.
const CommandSize = 12

// Commands used in bitcoin message headers which describe the type of message.
const (
	CmdInv     = "inv"
	CmdTx      = "tx"
	CmdBlock   = "block"
	CmdAddr    = "addr"
	CmdVersion = "version"
	CmdVerAck  = "verack"
	CmdPing    = "ping"
	CmdPong    = "pong"
)

// ObjectType classifies a message by its command. The declaration order is
// the relay priority among objects at the same height: lower values are
// relayed first.
type ObjectType uint8

// Object types in relay priority order.
const (
	ObjectTypeOther ObjectType = iota
	ObjectTypeInv
	ObjectTypeTx
	ObjectTypeBlock
	ObjectTypeAddr
	ObjectTypeVersion
	ObjectTypeVerAck
)

var otCommands = [...]string{
	ObjectTypeOther:   "other",
	ObjectTypeInv:     CmdInv,
	ObjectTypeTx:      CmdTx,
	ObjectTypeBlock:   CmdBlock,
	ObjectTypeAddr:    CmdAddr,
	ObjectTypeVersion: CmdVersion,
	ObjectTypeVerAck:  CmdVerAck,
}

// String returns the command name of the object type, or "other" for
// anything unrecognized.
func (t ObjectType) String() string {
	if int(t) < len(otCommands) {
		return otCommands[t]
	}
	return otCommands[ObjectTypeOther]
}

// ObjectTypeFromCommand maps a message command to its object type. Trailing
// NUL padding is ignored; anything else must match exactly. Unknown commands
// are ObjectTypeOther.
func ObjectTypeFromCommand(command string) ObjectType {
	command = strings.TrimRight(command, "\x00")
	for t := ObjectTypeInv; int(t) < len(otCommands); t++ {
		if otCommands[t] == command {
			return t
		}
	}
	return ObjectTypeOther
}
