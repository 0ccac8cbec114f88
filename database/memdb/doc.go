/*
Package memdb implements an instance of the database package that uses memory
for object storage.

This is the default driver. Nothing survives a restart, which matches the
behaviour of a relay that only forwards what it sees while running.
*/
package memdb
