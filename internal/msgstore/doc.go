// Package msgstore is the in-memory inter-agent message log with atomic
// unread retrieval, so two racing readers never both see the same message
// as unread.
package msgstore
