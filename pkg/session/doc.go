/*
Package session guards per-thread checkpoint access.

It serializes concurrent operations on the same thread with reference-counted
in-process locks, optionally backed by a distributed locker so multiple
replicas never run the same thread at once.
*/
package session
