// Package fetch turns a request URI into bytes.
//
// A Registry holds an ordered list of Factories; the first Factory that
// recognizes a request's URI builds the Fetcher for it. Fetching runs
// through a Chain of Interceptors ending in Terminal, so caching, retries and
// depth limits compose around any Fetcher.
//
// Built-in factories:
//
//   - HTTPFactory: http:// and https://
//   - FileFactory: file:// and absolute paths
//   - Base64Factory: data: URIs
//   - ResourceFactory: resource:// names within an fs.FS
//   - OCIFactory: oci://registry/repository@sha256:... blobs
package fetch
