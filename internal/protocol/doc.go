// Package protocol defines the binary stream frames and HTTP payload formats
// clients use to deliver speech segments, and the JSON events sent back.
package protocol
