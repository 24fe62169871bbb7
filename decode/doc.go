// Package decode turns fetched bytes into sized, transformed images.
//
// Decoding runs through a Chain of Interceptors ending in Terminal. The chain
// fetches lazily: Chain.Fetch runs the fetch pipeline on first use, so an
// interceptor that answers from a cache never touches the network.
package decode
